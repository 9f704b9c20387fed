package q2

import "strings"

// EncodingPolicy bundles the three byte-string codecs a network uses:
// network (identifiers/channels/nicks), outgoing (text we send) and
// incoming (text we receive). All three default to UTF-8 lossy decoding,
// per original_source/encoding.rs and spec §9's open-question resolution:
// these are immutable defaults, there is no runtime-configurable encoding
// surface.
//
// Each Decode method replaces every invalid UTF-8 sequence in its input
// with U+FFFD; each Encode method returns the string's bytes unchanged.
type EncodingPolicy struct{}

func decodeUTF8Lossy(b []byte) string { return strings.ToValidUTF8(string(b), "�") }

func (EncodingPolicy) DecodeNetwork(b []byte) string  { return decodeUTF8Lossy(b) }
func (EncodingPolicy) DecodeOutgoing(b []byte) string { return decodeUTF8Lossy(b) }
func (EncodingPolicy) DecodeIncoming(b []byte) string { return decodeUTF8Lossy(b) }

func (EncodingPolicy) EncodeNetwork(s string) []byte  { return []byte(s) }
func (EncodingPolicy) EncodeOutgoing(s string) []byte { return []byte(s) }
func (EncodingPolicy) EncodeIncoming(s string) []byte { return []byte(s) }
