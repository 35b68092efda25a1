package consumer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebplorenz/DataspaceConnector/internal/handler"
	"github.com/sebplorenz/DataspaceConnector/internal/storage/memory"
	"github.com/sebplorenz/DataspaceConnector/internal/usagecontrol"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/mime"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
	"github.com/sebplorenz/DataspaceConnector/pkg/transport"
)

// loopback delivers encoded messages straight to a provider dispatcher
type loopback struct {
	dispatcher *msh.Dispatcher
	identity   message.Identity
}

func (l *loopback) Send(ctx context.Context, _ string, body []byte, contentType string) (*transport.Response, error) {
	msg, err := mime.Parse(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	reply := l.dispatcher.Dispatch(message.WithIdentity(ctx, l.identity), msg)
	out, ct, err := reply.Encode()
	if err != nil {
		return nil, err
	}
	return &transport.Response{StatusCode: 200, ContentType: ct, Body: out}, nil
}

type provider struct {
	store   *memory.Store
	counter *usagecontrol.MemoryCounter
}

func newLoopback(t *testing.T) (*Client, *provider) {
	t.Helper()
	ctx := context.Background()

	p := &provider{store: memory.NewStore(), counter: usagecontrol.NewMemoryCounter()}
	require.NoError(t, p.store.PutDescription(ctx, "", []byte(`{"@type":"ids:BaseConnector"}`)))
	require.NoError(t, p.store.PutDescription(ctx, artifactID, []byte(`{"@type":"ids:Artifact"}`)))
	require.NoError(t, p.store.PutArtifactData(ctx, artifactID, []byte("temperature,21.5\n")))

	h, err := handler.New(handler.Config{
		Agreements:        p.store,
		Artifacts:         p.store,
		Catalog:           p.store,
		PolicyNegotiation: true,
		PEP:               usagecontrol.NewPEP(usagecontrol.PEPConfig{Counter: p.counter}),
		Executor:          usagecontrol.NewExecutor(usagecontrol.ExecutorConfig{Counter: p.counter}),
	})
	require.NoError(t, err)

	d := msh.NewDispatcher(msh.DispatcherConfig{InboundVersions: []string{"^4.0"}})
	h.Register(d)

	engine, err := msh.NewEngine(msh.EngineConfig{Sender: &loopback{
		dispatcher: d,
		identity:   message.Identity{ConnectorID: providerID, ModelVersion: "4.0.0"},
	}})
	require.NoError(t, err)

	c, err := New(Config{Exchanger: engine, Agreements: memory.NewStore()})
	require.NoError(t, err)
	return c, p
}

func TestLoopbackFlow(t *testing.T) {
	c, p := newLoopback(t)
	ctx := consumerContext()

	self, err := c.RequestDescription(ctx, providerURL, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"@type":"ids:BaseConnector"}`, string(self))

	// without an agreement nothing is released
	_, err = c.RequestArtifact(ctx, providerURL, artifactID, "", nil)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, message.RejectionBadParameters, rej.Reason)

	limited := `{"@type":"ids:ContractRequest","ids:permission":[{"ids:target":"urn:artifact:1",
		"ids:constraint":[{"ids:leftOperand":"idsc:COUNT","ids:operator":"idsc:LTEQ","ids:rightOperand":"1"}]}]}`
	a, err := c.NegotiateContract(ctx, providerURL, []byte(limited))
	require.NoError(t, err)
	assert.True(t, a.Confirmed)
	assert.Equal(t, providerID, a.ProviderID)

	remote, err := p.store.GetAgreement(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.True(t, remote.Confirmed)
	assert.Equal(t, consumerID, remote.ConsumerID)

	data, err := c.RequestArtifact(ctx, providerURL, artifactID, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("temperature,21.5\n"), data)

	_, err = c.RequestArtifact(ctx, providerURL, artifactID, a.ID, nil)
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, message.RejectionPolicyRestriction, rej.Reason)
}

func TestLoopbackUnknownElement(t *testing.T) {
	c, _ := newLoopback(t)

	_, err := c.RequestDescription(consumerContext(), providerURL, "urn:artifact:unknown")
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, message.RejectionNotFound, rej.Reason)
}
