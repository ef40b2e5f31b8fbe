package conn

// State is one of the connection FSM's states. The request side runs
// 1-8, the response side 9-13. TLSConnectionInit is defined but never
// entered: every connection, TLS-wrapped or not, starts in Init.
type State uint8

const (
	TLSConnectionInit State = iota
	Init
	URLReceived
	HeaderPartReceived
	HeadersReceived
	HeadersProcessed
	ContinueSending
	ContinueSent
	BodyReceived
	FootersReceived
	HeadersSending
	HeadersSent
	NormalBodyReady
	NormalBodyUnready
	ChunkedBodyReady
	ChunkedBodyUnready
	BodySent
	FootersSent
	Closed
)

func (s State) String() string {
	switch s {
	case TLSConnectionInit:
		return "tls-connection-init"
	case Init:
		return "init"
	case URLReceived:
		return "url-received"
	case HeaderPartReceived:
		return "header-part-received"
	case HeadersReceived:
		return "headers-received"
	case HeadersProcessed:
		return "headers-processed"
	case ContinueSending:
		return "continue-sending"
	case ContinueSent:
		return "continue-sent"
	case BodyReceived:
		return "body-received"
	case FootersReceived:
		return "footers-received"
	case HeadersSending:
		return "headers-sending"
	case HeadersSent:
		return "headers-sent"
	case NormalBodyReady:
		return "normal-body-ready"
	case NormalBodyUnready:
		return "normal-body-unready"
	case ChunkedBodyReady:
		return "chunked-body-ready"
	case ChunkedBodyUnready:
		return "chunked-body-unready"
	case BodySent:
		return "body-sent"
	case FootersSent:
		return "footers-sent"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
