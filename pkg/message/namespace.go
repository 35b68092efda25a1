package message

import "strings"

// Vocabulary namespaces used in message headers
const (
	NsIDS  = "https://w3id.org/idsa/core/"
	NsIDSC = "https://w3id.org/idsa/code/"
)

// DefaultContext is the JSON-LD context attached to every header we emit.
var DefaultContext = map[string]string{
	"ids":  NsIDS,
	"idsc": NsIDSC,
}

// CompactIRI rewrites a full vocabulary IRI into its prefixed form.
// Terms that are already compact or belong to other vocabularies are
// returned unchanged.
//
// Peers are free to send either form, so everything that compares message
// types or codes runs the value through CompactIRI first:
//
//	CompactIRI("https://w3id.org/idsa/core/ArtifactRequestMessage") // "ids:ArtifactRequestMessage"
//	CompactIRI("ids:ArtifactRequestMessage")                        // unchanged
func CompactIRI(term string) string {
	switch {
	case strings.HasPrefix(term, NsIDS):
		return "ids:" + strings.TrimPrefix(term, NsIDS)
	case strings.HasPrefix(term, NsIDSC):
		return "idsc:" + strings.TrimPrefix(term, NsIDSC)
	}
	return term
}

// ExpandIRI is the inverse of CompactIRI.
func ExpandIRI(term string) string {
	switch {
	case strings.HasPrefix(term, "ids:"):
		return NsIDS + strings.TrimPrefix(term, "ids:")
	case strings.HasPrefix(term, "idsc:"):
		return NsIDSC + strings.TrimPrefix(term, "idsc:")
	}
	return term
}
