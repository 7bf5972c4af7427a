package registry

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/delay"
	"github.com/try-flowforge/backend/pkg/nodes/httprequest"
	"github.com/try-flowforge/backend/pkg/nodes/ifnode"
	"github.com/try-flowforge/backend/pkg/nodes/llm"
	lognode "github.com/try-flowforge/backend/pkg/nodes/log"
	"github.com/try-flowforge/backend/pkg/nodes/switchnode"
	"github.com/try-flowforge/backend/pkg/nodes/transform"
	"github.com/try-flowforge/backend/pkg/nodes/trigger"
	"github.com/try-flowforge/backend/pkg/nodes/wallet"
)

// Dependencies carries the collaborators of the built-in processors.
// Processors whose collaborators are nil are not registered.
type Dependencies struct {
	Logger        *slog.Logger
	Jobs          llm.Jobs
	LLMTimeout    time.Duration
	Locker        wallet.Locker
	Wallets       wallet.Provisioner
	WalletLockTTL time.Duration
	HTTPTransport http.RoundTripper
}

// RegisterDefaultNodes registers all built-in processors with the registry.
func (r *Registry) RegisterDefaultNodes(deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = r.logger
	}

	r.Register(trigger.NewProcessor(models.NodeTypeTrigger))
	r.Register(trigger.NewProcessor(models.NodeTypeStart))
	r.Register(ifnode.NewProcessor())
	r.Register(switchnode.NewProcessor())
	r.Register(lognode.NewProcessor(logger))
	r.Register(delay.NewProcessor())
	r.Register(transform.NewProcessor())
	r.Register(httprequest.NewProcessor(deps.HTTPTransport, logger))

	if deps.Jobs != nil {
		r.Register(llm.NewProcessor(deps.Jobs, deps.LLMTimeout, logger))
	} else {
		r.logger.Info("LLM processor disabled: no job queue configured")
	}

	if deps.Locker != nil && deps.Wallets != nil {
		r.Register(wallet.NewProcessor(deps.Locker, deps.Wallets, deps.WalletLockTTL, logger))
	} else {
		r.logger.Info("Wallet processor disabled: no relayer configured")
	}
}
