package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/lock"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/wallet"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/queue"
	"github.com/try-flowforge/backend/pkg/registry"
)

type stubProcessor struct {
	nodeType models.NodeType
}

func (s stubProcessor) NodeType() models.NodeType {
	return s.nodeType
}

func (s stubProcessor) Execute(context.Context, *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	return &protocol.NodeExecutionOutput{Success: true}, nil
}

func (s stubProcessor) Validate(map[string]any) protocol.ValidationResult {
	return protocol.Valid()
}

type stubJobs struct{}

func (stubJobs) Add(context.Context, string, any, queue.AddOptions) (string, bool, error) {
	return "", false, nil
}

func (stubJobs) WaitForResult(context.Context, string, string, time.Duration) (json.RawMessage, error) {
	return nil, nil
}

type stubLocker struct{}

func (stubLocker) WithLock(ctx context.Context, _ string, _ lock.Options, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubWallets struct{}

func (stubWallets) CreateWallet(context.Context, string, string) (*wallet.Wallet, error) {
	return &wallet.Wallet{}, nil
}

func TestRegistry_GetProcessor(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.Register(stubProcessor{nodeType: models.NodeTypeSwap})

	p, err := r.GetProcessor(models.NodeTypeSwap)
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeSwap, p.NodeType())

	_, err = r.GetProcessor(models.NodeTypePerps)
	require.ErrorIs(t, err, registry.ErrProcessorNotRegistered)

	var notRegistered *registry.ProcessorNotRegisteredError
	require.True(t, errors.As(err, &notRegistered))
	assert.Equal(t, models.NodeTypePerps, notRegistered.NodeType)
	assert.Contains(t, err.Error(), "PERPS")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.Register(stubProcessor{nodeType: models.NodeTypeSwap})
	r.Register(stubProcessor{nodeType: models.NodeTypeSwap})

	assert.Equal(t, []models.NodeType{models.NodeTypeSwap}, r.Types())
}

func TestRegisterDefaultNodes(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.RegisterDefaultNodes(registry.Dependencies{Logger: log.Discard()})

	types := r.Types()
	assert.ElementsMatch(t, []models.NodeType{
		models.NodeTypeTrigger,
		models.NodeTypeStart,
		models.NodeTypeIf,
		models.NodeTypeSwitch,
		models.NodeTypeLog,
		models.NodeTypeDelay,
		models.NodeTypeTransform,
		models.NodeTypeHTTPRequest,
	}, types)

	_, err := r.GetProcessor(models.NodeTypeLLMTransform)
	assert.ErrorIs(t, err, registry.ErrProcessorNotRegistered)
}

func TestRegisterDefaultNodes_WithOptionalDependencies(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.RegisterDefaultNodes(registry.Dependencies{
		Logger:        log.Discard(),
		Jobs:          stubJobs{},
		LLMTimeout:    time.Second,
		Locker:        stubLocker{},
		Wallets:       stubWallets{},
		WalletLockTTL: time.Minute,
	})

	for _, nodeType := range []models.NodeType{models.NodeTypeLLMTransform, models.NodeTypeWallet} {
		p, err := r.GetProcessor(nodeType)
		require.NoError(t, err)
		assert.Equal(t, nodeType, p.NodeType())
	}
}

func TestRegistry_Describe(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.RegisterDefaultNodes(registry.Dependencies{})
	r.Register(stubProcessor{nodeType: models.NodeTypeSwap})

	descriptors := r.Describe()
	require.Len(t, descriptors, len(r.Types()))

	byType := make(map[models.NodeType]registry.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byType[d.Type] = d
	}

	assert.Equal(t, "If", byType[models.NodeTypeIf].Name)
	assert.NotEmpty(t, byType[models.NodeTypeIf].Schema)
	assert.Equal(t, "SWAP", byType[models.NodeTypeSwap].Name)
	assert.Nil(t, byType[models.NodeTypeSwap].Schema)
}
