// Package statecodec encrypts and decrypts the JSON state blob carried through
// the OAuth2 `state` query parameter.
//
// Each layer is formatted as `<iv>:<ciphertext>` using the configured text
// encoding. When several keys are configured the layers are applied in key
// order on encode; DecodeOrder selects how they are peeled off again.
package statecodec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

type Algorithm string

const (
	AES128CBC         Algorithm = "aes-128-cbc"
	AES192CBC         Algorithm = "aes-192-cbc"
	AES256CBC         Algorithm = "aes-256-cbc"
	XChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
)

type Encoding string

const (
	Hex    Encoding = "hex"
	Base64 Encoding = "base64"
)

type DecodeOrder string

const (
	// DecodeReverse removes the last applied layer first.
	DecodeReverse DecodeOrder = "reverse"
	// DecodeForward applies keys in the same order used for encoding. It only
	// inverts Encode for a single key or a palindromic key list.
	DecodeForward DecodeOrder = "forward"
)

const DefaultIVLength = 16

// Options configures a Codec. Zero values fall back to aes-256-cbc, hex,
// a 16 byte IV and reverse decode order.
type Options struct {
	Keys        []string    `yaml:"keys"`
	Algorithm   Algorithm   `yaml:"algorithm"`
	Encoding    Encoding    `yaml:"encoding"`
	IVLength    int         `yaml:"iv_length"`
	DecodeOrder DecodeOrder `yaml:"decode_order"`
}

// Codec is safe for concurrent use.
type Codec struct {
	keys      [][]byte
	algorithm Algorithm
	encoding  Encoding
	ivLength  int
	order     DecodeOrder
}

// New validates opts and returns a Codec.
func New(opts Options) (*Codec, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	keys := make([][]byte, len(opts.Keys))
	for i, k := range opts.Keys {
		keys[i] = []byte(k)
	}
	return &Codec{
		keys:      keys,
		algorithm: opts.Algorithm,
		encoding:  opts.Encoding,
		ivLength:  opts.IVLength,
		order:     opts.DecodeOrder,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Algorithm == "" {
		o.Algorithm = AES256CBC
	}
	if o.Encoding == "" {
		o.Encoding = Hex
	}
	if o.IVLength == 0 {
		o.IVLength = DefaultIVLength
		if o.Algorithm == XChaCha20Poly1305 {
			o.IVLength = chacha20poly1305.NonceSizeX
		}
	}
	if o.DecodeOrder == "" {
		o.DecodeOrder = DecodeReverse
	}
	return o
}

// Validate checks opts after defaults have been applied.
func (o Options) Validate() error {
	if len(o.Keys) == 0 {
		return apperrors.Wrapf(apperrors.ErrConfig, "statecodec: at least one key is required")
	}
	switch o.Encoding {
	case Hex, Base64:
	default:
		return apperrors.Wrapf(apperrors.ErrConfig, "statecodec: unsupported encoding %q", o.Encoding)
	}
	switch o.DecodeOrder {
	case DecodeReverse, DecodeForward:
	default:
		return apperrors.Wrapf(apperrors.ErrConfig, "statecodec: unsupported decode order %q", o.DecodeOrder)
	}
	size, ok := keySize(o.Algorithm)
	if !ok {
		return apperrors.Wrapf(apperrors.ErrConfig, "statecodec: unsupported algorithm %q", o.Algorithm)
	}
	for i, k := range o.Keys {
		if len(k) != size {
			return apperrors.Wrapf(apperrors.ErrConfig, "statecodec: key %d must be %d bytes for %s, got %d", i, size, o.Algorithm, len(k))
		}
	}
	if o.Algorithm == XChaCha20Poly1305 {
		if o.IVLength != chacha20poly1305.NonceSizeX {
			return apperrors.Wrapf(apperrors.ErrConfig, "statecodec: %s needs a %d byte nonce", o.Algorithm, chacha20poly1305.NonceSizeX)
		}
	} else if o.IVLength != aes.BlockSize {
		return apperrors.Wrapf(apperrors.ErrConfig, "statecodec: %s needs a %d byte iv", o.Algorithm, aes.BlockSize)
	}
	return nil
}

func keySize(a Algorithm) (int, bool) {
	switch a {
	case AES128CBC:
		return 16, true
	case AES192CBC:
		return 24, true
	case AES256CBC:
		return 32, true
	case XChaCha20Poly1305:
		return chacha20poly1305.KeySize, true
	}
	return 0, false
}

// Encode encrypts plaintext once per configured key, in key order.
func (c *Codec) Encode(plaintext string) (string, error) {
	result := plaintext
	for _, key := range c.keys {
		layer, err := c.encodeLayer(key, []byte(result))
		if err != nil {
			return "", err
		}
		result = layer
	}
	return result, nil
}

// Decode reverses Encode according to the configured DecodeOrder. Every
// failure wraps errors.ErrDecoding.
func (c *Codec) Decode(ciphertext string) (string, error) {
	result := ciphertext
	for i := range c.keys {
		key := c.keys[i]
		if c.order == DecodeReverse {
			key = c.keys[len(c.keys)-1-i]
		}
		plain, err := c.decodeLayer(key, result)
		if err != nil {
			return "", err
		}
		result = string(plain)
	}
	return result, nil
}

func (c *Codec) encodeLayer(key, plaintext []byte) (string, error) {
	iv := make([]byte, c.ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("statecodec: failed to generate iv: %w", err)
	}

	var sealed []byte
	if c.algorithm == XChaCha20Poly1305 {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return "", apperrors.Wrapf(apperrors.ErrConfig, "statecodec: %v", err)
		}
		sealed = aead.Seal(nil, iv, plaintext, nil)
	} else {
		block, err := aes.NewCipher(key)
		if err != nil {
			return "", apperrors.Wrapf(apperrors.ErrConfig, "statecodec: %v", err)
		}
		padded := pkcs7Pad(plaintext, aes.BlockSize)
		sealed = make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(sealed, padded)
	}

	return c.encode(iv) + ":" + c.encode(sealed), nil
}

func (c *Codec) decodeLayer(key []byte, text string) ([]byte, error) {
	ivText, dataText, found := strings.Cut(text, ":")
	if !found {
		return nil, decodingError("missing iv separator")
	}
	iv, err := c.decode(ivText)
	if err != nil {
		return nil, decodingError("invalid iv encoding")
	}
	data, err := c.decode(dataText)
	if err != nil {
		return nil, decodingError("invalid ciphertext encoding")
	}
	if len(iv) != c.ivLength {
		return nil, decodingError("invalid iv length")
	}

	if c.algorithm == XChaCha20Poly1305 {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, decodingError(err.Error())
		}
		plain, err := aead.Open(nil, iv, data, nil)
		if err != nil {
			return nil, decodingError("message authentication failed")
		}
		return plain, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, decodingError(err.Error())
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, decodingError("ciphertext is not a multiple of the block size")
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func (c *Codec) encode(b []byte) string {
	if c.encoding == Base64 {
		return base64.StdEncoding.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}

func (c *Codec) decode(s string) ([]byte, error) {
	if c.encoding == Base64 {
		return base64.StdEncoding.DecodeString(s)
	}
	return hex.DecodeString(s)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, decodingError("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, decodingError("bad padding")
		}
	}
	return b[:len(b)-n], nil
}

func decodingError(reason string) error {
	return fmt.Errorf("statecodec: %s: %w", reason, apperrors.ErrDecoding)
}

// Encode builds a Codec from opts and encrypts plaintext.
func Encode(opts Options, plaintext string) (string, error) {
	c, err := New(opts)
	if err != nil {
		return "", err
	}
	return c.Encode(plaintext)
}

// Decode builds a Codec from opts and decrypts ciphertext. Invalid options,
// including a key of the wrong length, are reported as a decoding error.
func Decode(opts Options, ciphertext string) (string, error) {
	c, err := New(opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrDecoding, err)
	}
	return c.Decode(ciphertext)
}
