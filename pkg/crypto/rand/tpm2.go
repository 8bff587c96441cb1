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

//go:build tpm2

package rand

import (
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/tcp"
	"github.com/google/go-tpm/tpmutil"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// tpm2Resolver draws entropy with TPM2_GetRandom. Requests larger than
// MaxRequestSize are split into several commands.
type tpm2Resolver struct {
	mu      sync.Mutex
	tpm     transport.TPMCloser
	maxSize int
}

func newTPM2Resolver(config *TPM2Config) (Resolver, error) {
	cfg := TPM2Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/tpmrm0"
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 32
	}

	var tpm transport.TPMCloser
	if cfg.UseSimulator {
		if cfg.SimulatorHost == "" {
			cfg.SimulatorHost = "localhost"
		}
		if cfg.SimulatorPort <= 0 {
			cfg.SimulatorPort = 2321
		}
		// swtpm listens for commands on port and platform control on port+1
		conn, err := tcp.Open(tcp.Config{
			CommandAddress:  fmt.Sprintf("%s:%d", cfg.SimulatorHost, cfg.SimulatorPort),
			PlatformAddress: fmt.Sprintf("%s:%d", cfg.SimulatorHost, cfg.SimulatorPort+1),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: tpm2 simulator: %w", types.ErrOther, err)
		}
		tpm = conn
	} else {
		dev, err := tpmutil.OpenTPM(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", types.ErrOther, cfg.Device, err)
		}
		tpm = transport.FromReadWriteCloser(dev)
	}

	return &tpm2Resolver{tpm: tpm, maxSize: cfg.MaxRequestSize}, nil
}

func tpm2Available() bool {
	return true
}

func (t *tpm2Resolver) Rand(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tpm == nil {
		return nil, ErrClosed
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := min(n-len(out), t.maxSize)
		cmd := tpm2.GetRandom{BytesRequested: uint16(chunk)}
		rsp, err := cmd.Execute(t.tpm)
		if err != nil {
			return nil, fmt.Errorf("%w: TPM2_GetRandom: %w", types.ErrCryptographic, err)
		}
		if len(rsp.RandomBytes.Buffer) == 0 {
			return nil, fmt.Errorf("%w: TPM2_GetRandom returned no bytes", types.ErrCryptographic)
		}
		out = append(out, rsp.RandomBytes.Buffer...)
	}
	return out[:n], nil
}

func (t *tpm2Resolver) Read(p []byte) (int, error) {
	return readFull(t, p)
}

func (t *tpm2Resolver) Mode() Mode {
	return ModeTPM2
}

func (t *tpm2Resolver) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tpm != nil
}

func (t *tpm2Resolver) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tpm == nil {
		return nil
	}
	err := t.tpm.Close()
	t.tpm = nil
	return err
}
