package handler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebplorenz/DataspaceConnector/internal/storage/memory"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
)

func TestArtifactRequestWithoutNegotiation(t *testing.T) {
	f := newFixture(t, withoutNegotiation)
	ctx := providerContext()

	assertArtifactData(t, f.handler.HandleArtifactRequest(ctx, artifactRequest("", nil)))
	assertArtifactData(t, f.handler.HandleArtifactRequest(ctx, artifactRequest("", []byte(`{"parameters":{"from":"2024-01-01"}}`))))
	assertArtifactData(t, f.handler.HandleArtifactRequest(ctx, artifactRequest("", []byte("null"))))

	// nothing is enforced or counted without negotiation
	assert.Empty(t, f.reporter.logs)
}

func TestArtifactRequestRejections(t *testing.T) {
	const notify = `{"ids:action":"idsc:NOTIFY","ids:constraint":[{"ids:leftOperand":"idsc:ENDPOINT","ids:operator":"idsc:DEFINES_AS","ids:rightOperand":"https://owner.example/notify"}]}`

	tests := []struct {
		name       string
		permission string
		mutate     func(*message.Header)
		payload    []byte
		setup      func(*fixture)
		want       message.RejectionReason
	}{
		{
			name:   "missing artifact",
			mutate: func(h *message.Header) { h.RequestedArtifact = "" },
			want:   message.RejectionBadParameters,
		},
		{
			name:   "missing transfer contract",
			mutate: func(h *message.Header) { h.TransferContract = "" },
			want:   message.RejectionBadParameters,
		},
		{
			name:   "unknown contract",
			mutate: func(h *message.Header) { h.TransferContract = "urn:agreement:unknown" },
			want:   message.RejectionBadParameters,
		},
		{
			name:       "contract for another artifact",
			permission: `{"ids:target":"urn:artifact:1"}`,
			mutate:     func(h *message.Header) { h.RequestedArtifact = "urn:artifact:2" },
			want:       message.RejectionBadParameters,
		},
		{
			name:       "connector restricted",
			permission: `{"ids:target":"urn:artifact:1","ids:constraint":[{"ids:leftOperand":"idsc:SYSTEM","ids:operator":"idsc:SAME_AS","ids:rightOperand":"https://other.example/connector"}]}`,
			want:       message.RejectionPolicyRestriction,
		},
		{
			name:       "artifact outside the agreement",
			permission: `{"ids:target":"urn:artifact:2"}`,
			mutate:     func(h *message.Header) { h.RequestedArtifact = "urn:artifact:2" },
			want:       message.RejectionBadParameters,
		},
		{
			name: "restricted permission beside an unrestricted one",
			permission: `{"ids:target":"urn:artifact:1"},` +
				`{"ids:target":"urn:artifact:1","ids:constraint":[{"ids:leftOperand":"idsc:SYSTEM","ids:operator":"idsc:SAME_AS","ids:rightOperand":"https://other.example/connector"}]}`,
			want: message.RejectionPolicyRestriction,
		},
		{
			name:       "usage exhausted",
			permission: `{"ids:target":"urn:artifact:1","ids:constraint":[{"ids:leftOperand":"idsc:COUNT","ids:operator":"idsc:LTEQ","ids:rightOperand":"1"}]}`,
			setup: func(f *fixture) {
				_, _ = f.counter.Increment(providerContext(), agreement, artifact)
			},
			want: message.RejectionPolicyRestriction,
		},
		{
			name:       "malformed query",
			permission: `{"ids:target":"urn:artifact:1"}`,
			payload:    []byte(`{"parameters":`),
			want:       message.RejectionBadParameters,
		},
		{
			name:       "unknown query field",
			permission: `{"ids:target":"urn:artifact:1"}`,
			payload:    []byte(`{"filter":"all"}`),
			want:       message.RejectionBadParameters,
		},
		{
			name:       "artifact store failure",
			permission: `{"ids:target":"urn:artifact:1"}`,
			setup:      func(f *fixture) { f.handler.artifacts = brokenArtifacts{} },
			want:       message.RejectionInternalRecipientError,
		},
		{
			name:       "response log fails",
			permission: `{"ids:target":"urn:artifact:1"}`,
			setup: func(f *fixture) {
				f.handler.auditor = &auditLog{err: errors.New("clearing house down")}
			},
			want: message.RejectionInternalRecipientError,
		},
		{
			name:       "notification fails",
			permission: `{"ids:target":"urn:artifact:1","ids:postDuty":[` + notify + `]}`,
			setup:      func(f *fixture) { f.reporter.err = errors.New("endpoint down") },
			want:       message.RejectionPolicyRestriction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.permission != "" {
				f.agree(t, tt.permission)
			}
			if tt.setup != nil {
				tt.setup(f)
			}
			before, err := f.counter.Count(providerContext(), agreement, artifact)
			require.NoError(t, err)

			req := artifactRequest(agreement, tt.payload)
			if tt.mutate != nil {
				tt.mutate(req.Header)
			}
			assertRejected(t, f.handler.HandleArtifactRequest(providerContext(), req), tt.want)

			// rejected requests are never counted
			after, err := f.counter.Count(providerContext(), agreement, artifact)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestArtifactRequestNotFound(t *testing.T) {
	f := newFixture(t)
	f.agree(t, `{"ids:target":"urn:artifact:1"}`)
	f.handler.artifacts = memory.NewStore()

	reply := f.handler.HandleArtifactRequest(providerContext(), artifactRequest(agreement, nil))
	assertRejected(t, reply, message.RejectionNotFound)
}

func TestArtifactRequestWithPostDuties(t *testing.T) {
	f := newFixture(t)
	f.agree(t, `{"ids:target":"urn:artifact:1","ids:postDuty":[
		{"ids:action":"idsc:LOG"},
		{"ids:action":"idsc:NOTIFY","ids:constraint":[{"ids:leftOperand":"idsc:ENDPOINT","ids:operator":"idsc:DEFINES_AS","ids:rightOperand":"https://owner.example/notify"}]}
	]}`)

	assertArtifactData(t, f.handler.HandleArtifactRequest(providerContext(), artifactRequest(agreement, nil)))

	assert.Equal(t, []string{artifact}, f.reporter.logs)
	assert.Equal(t, []string{"https://owner.example/notify " + artifact}, f.reporter.reports)

	n, err := f.counter.Count(providerContext(), agreement, artifact)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestArtifactRequestUsageLimit(t *testing.T) {
	f := newFixture(t)
	f.agree(t, `{"ids:target":"urn:artifact:1","ids:constraint":[{"ids:leftOperand":"idsc:COUNT","ids:operator":"idsc:LTEQ","ids:rightOperand":"2"}]}`)
	ctx := providerContext()

	assertArtifactData(t, f.handler.HandleArtifactRequest(ctx, artifactRequest(agreement, nil)))
	assertArtifactData(t, f.handler.HandleArtifactRequest(ctx, artifactRequest(agreement, nil)))
	assertRejected(t, f.handler.HandleArtifactRequest(ctx, artifactRequest(agreement, nil)), message.RejectionPolicyRestriction)
}

func TestArtifactResponseIsLogged(t *testing.T) {
	audit := &auditLog{}
	f := newFixture(t, func(c *Config) { c.Auditor = audit })
	f.agree(t, `{"ids:target":"urn:artifact:1"}`)

	reply := f.handler.HandleArtifactRequest(providerContext(), artifactRequest(agreement, nil))
	assertArtifactData(t, reply)

	require.Len(t, audit.headers, 1)
	assert.Equal(t, reply.Header, audit.headers[0])

	// rejections are not artifact releases
	f.handler.HandleArtifactRequest(providerContext(), artifactRequest("urn:agreement:unknown", nil))
	assert.Len(t, audit.headers, 1)
}
