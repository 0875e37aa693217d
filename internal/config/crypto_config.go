package config

import (
	"github.com/jrsteele09/go-discord-auth/statecodec"
)

const (
	stateKeysVar        = "STATE_KEYS"
	stateEncodingVar    = "STATE_ENCODING"
	stateAlgorithmVar   = "STATE_ALGORITHM"
	stateDecodeOrderVar = "STATE_DECODE_ORDER"
)

type Crypto struct {
	file *File
}

var _ CryptoConfig = Crypto{}

// GetStateOptions returns the state codec options. STATE_KEYS is a comma
// separated list applied in order.
func (c Crypto) GetStateOptions() statecodec.Options {
	var opts statecodec.Options
	if c.file != nil {
		opts = c.file.State
	}
	opts.Keys = GetEnvList(stateKeysVar, ",", opts.Keys)
	opts.Algorithm = statecodec.Algorithm(GetEnv(stateAlgorithmVar, string(opts.Algorithm)))
	opts.Encoding = statecodec.Encoding(GetEnv(stateEncodingVar, string(opts.Encoding)))
	opts.DecodeOrder = statecodec.DecodeOrder(GetEnv(stateDecodeOrderVar, string(opts.DecodeOrder)))
	return opts
}
