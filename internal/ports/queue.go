package ports

type EnvelopeQueue interface {
	Enqueue(env Envelope) bool
	DequeueBatch(max int) []Envelope
	Len() int
}
