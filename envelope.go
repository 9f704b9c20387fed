package q2

// Envelope carries a request/reply correlation pair alongside arbitrary
// contents through the command/event flow. client_tag is set by the
// originating remote and echoed back on the terminal reply; remote_tag is
// fabricated by the accept path and used to address a reply to one
// specific remote. Spontaneous (non-reply) events carry both as nil.
//
// This mirrors original_source/envelope.rs's Envelope<T>, generalized with
// Go generics instead of the Rust generic struct + encapsulate/copy_with
// helpers.
type Envelope[T any] struct {
	ClientTag *uint64
	RemoteTag *uint64
	Contents  T
}

// Empty wraps x with no correlation tags, for spontaneous events.
func Empty[T any](x T) Envelope[T] {
	return Envelope[T]{Contents: x}
}

// CopyWith produces a new envelope with the same tags as e but different
// contents, mirroring envelope.rs's copy_with.
func CopyWith[T, U any](e Envelope[T], x U) Envelope[U] {
	return Envelope[U]{ClientTag: e.ClientTag, RemoteTag: e.RemoteTag, Contents: x}
}

// Encapsulate maps f over the envelope's contents, preserving tags.
func Encapsulate[T, U any](e Envelope[T], f func(T) U) Envelope[U] {
	return Envelope[U]{ClientTag: e.ClientTag, RemoteTag: e.RemoteTag, Contents: f(e.Contents)}
}

func tagPtr(v uint64) *uint64 { return &v }
