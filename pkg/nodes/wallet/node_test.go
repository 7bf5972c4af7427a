package wallet_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/lock"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/wallet"
	"github.com/try-flowforge/backend/pkg/protocol"
)

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) CreateWallet(ctx context.Context, userID, chain string) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID, chain)

	w, _ := args.Get(0).(*wallet.Wallet)

	return w, args.Error(1)
}

func setupLocker(t *testing.T) *lock.Locker {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return lock.NewLocker(client, log.Discard())
}

func walletInput() *protocol.NodeExecutionInput {
	return &protocol.NodeExecutionInput{
		NodeID:           "wallet-1",
		NodeType:         models.NodeTypeWallet,
		NodeConfig:       map[string]any{"chain": "base"},
		ExecutionContext: models.NewExecutionContext("exec-1", "wf-1", "user-1", "manual", nil),
	}
}

func TestProcessor_CreatesWallet(t *testing.T) {
	t.Parallel()

	provisioner := &mockProvisioner{}
	provisioner.On("CreateWallet", mock.Anything, "user-1", "base").
		Return(&wallet.Wallet{Address: "0xabc", Chain: "base", Created: true}, nil)

	processor := wallet.NewProcessor(setupLocker(t), provisioner, time.Minute, log.Discard())

	output, err := processor.Execute(context.Background(), walletInput())
	require.NoError(t, err)
	require.True(t, output.Success)
	assert.Equal(t, map[string]any{"address": "0xabc", "chain": "base", "created": true}, output.Output)
	provisioner.AssertExpectations(t)
}

func TestProcessor_ConcurrentCreationInProgress(t *testing.T) {
	t.Parallel()

	locker := setupLocker(t)

	held, err := locker.Acquire(context.Background(), wallet.LockKey("user-1", "base"), lock.Options{TTL: time.Minute})
	require.NoError(t, err)
	require.True(t, held.Acquired)

	provisioner := &mockProvisioner{}
	processor := wallet.NewProcessor(locker, provisioner, time.Minute, log.Discard())

	output, err := processor.Execute(context.Background(), walletInput())
	require.NoError(t, err)
	assert.False(t, output.Success)
	assert.Equal(t, wallet.ErrorCodeInProgress, output.Error.Code)
	provisioner.AssertNotCalled(t, "CreateWallet", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_ReleasesLockAfterFailure(t *testing.T) {
	t.Parallel()

	locker := setupLocker(t)

	provisioner := &mockProvisioner{}
	provisioner.On("CreateWallet", mock.Anything, "user-1", "base").Return(nil, errors.New("relayer down")).Once()
	provisioner.On("CreateWallet", mock.Anything, "user-1", "base").Return(&wallet.Wallet{Address: "0xabc", Chain: "base"}, nil).Once()

	processor := wallet.NewProcessor(locker, provisioner, time.Minute, log.Discard())

	output, err := processor.Execute(context.Background(), walletInput())
	require.NoError(t, err)
	assert.False(t, output.Success)
	assert.Equal(t, wallet.ErrorCodeCreationFailed, output.Error.Code)

	output, err = processor.Execute(context.Background(), walletInput())
	require.NoError(t, err)
	assert.True(t, output.Success)
}

func TestProcessor_MissingUser(t *testing.T) {
	t.Parallel()

	input := walletInput()
	input.ExecutionContext = nil

	output, err := wallet.NewProcessor(setupLocker(t), &mockProvisioner{}, time.Minute, log.Discard()).Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, wallet.ErrorCodeMissingUser, output.Error.Code)
}

func TestRelayerClient_CreateWallet(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wallets", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["userId"])

		_, _ = w.Write([]byte(`{"address":"0xdef","created":false}`))
	}))
	defer server.Close()

	created, err := wallet.NewRelayerClient(server.URL, "key", time.Second).CreateWallet(context.Background(), "user-1", "base")
	require.NoError(t, err)
	assert.Equal(t, "0xdef", created.Address)
	assert.Equal(t, "base", created.Chain)
	assert.False(t, created.Created)
}

func TestRelayerClient_Error(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := wallet.NewRelayerClient(server.URL, "", time.Second).CreateWallet(context.Background(), "user-1", "base")

	var relayerErr *wallet.RelayerError
	require.ErrorAs(t, err, &relayerErr)
	assert.Equal(t, http.StatusBadGateway, relayerErr.StatusCode)
}
