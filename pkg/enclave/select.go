// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.
//
// go-mpc is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package enclave

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/rand"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// New selects the vault once from configuration:
//
//	enable_hsm              -> HSM
//	enable_hardware_enclave -> TEE
//	kms.provider            -> KMS
//	otherwise               -> software
//
// A missing HSM or TEE falls back to the software vault with a warning.
// KMS misconfiguration is returned as an error.
func New(ctx context.Context, config *Config) (Vault, error) {
	if config == nil {
		config = &Config{}
	}
	log := logging.OrNoOp(config.Logger)

	if config.EnableHSM {
		v, err := NewHSMVault(config.HSM)
		if err == nil {
			log.Info("vault selected", logging.String("kind", string(KindHSM)))
			return v, nil
		}
		if !fallback(err) {
			return nil, err
		}
		log.Warn("hsm unavailable, falling back to software vault", logging.Error(err))
	}

	if config.EnableHardwareEnclave {
		sw, err := softwareConfig(config)
		if err != nil {
			return nil, err
		}
		v, err := NewTEEVault(sw, config.TEE, nil)
		clear(sw.MasterKey)
		if err == nil {
			log.Info("vault selected", logging.String("kind", string(v.Kind())))
			return v, nil
		}
		_ = sw.Random.Close()
		if !fallback(err) {
			return nil, err
		}
		log.Warn("trusted execution environment unavailable, falling back to software vault", logging.Error(err))
	}

	if config.KMS != nil && config.KMS.Provider != "" {
		v, err := NewKMSVault(ctx, config.KMS)
		if err != nil {
			return nil, err
		}
		log.Info("vault selected",
			logging.String("kind", string(KindKMS)),
			logging.String("provider", config.KMS.Provider))
		return v, nil
	}

	sw, err := softwareConfig(config)
	if err != nil {
		return nil, err
	}
	v, err := NewSoftwareVault(sw)
	clear(sw.MasterKey)
	if err != nil {
		_ = sw.Random.Close()
		return nil, err
	}
	log.Info("vault selected",
		logging.String("kind", string(KindSoftware)),
		logging.String("algorithm", v.Algorithm()),
		logging.String("key_id", v.KeyID()),
		logging.String("rng", string(sw.Random.Mode())))
	return v, nil
}

func fallback(err error) bool {
	return errors.Is(err, ErrNotCompiled) || errors.Is(err, ErrUnavailable)
}

func softwareConfig(config *Config) (*SoftwareConfig, error) {
	var master []byte
	if config.MasterKey != "" {
		key, err := hex.DecodeString(config.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("%w: master key is not hex", types.ErrInvalidParameter)
		}
		master = key
	}

	random, err := rand.NewResolver(config.Random)
	if err != nil {
		return nil, err
	}

	return &SoftwareConfig{
		Algorithm:      config.Algorithm,
		MasterKey:      master,
		UnsealShares:   config.UnsealShares,
		MaxEncryptions: config.MaxEncryptions,
		Random:         random,
	}, nil
}
