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
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// gcpMaxRandom is the GenerateRandomBytes per-call limit
const gcpMaxRandom = 1024

var errIntegrity = errors.New("response failed CRC32C integrity check")

// GCPKMSClient is the subset of the Cloud KMS API the vault calls.
type GCPKMSClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
	GenerateRandomBytes(ctx context.Context, req *kmspb.GenerateRandomBytesRequest) (*kmspb.GenerateRandomBytesResponse, error)
	Close() error
}

// gcpClient adapts the generated client, dropping call options.
type gcpClient struct {
	*kms.KeyManagementClient
}

func (c gcpClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
	return c.KeyManagementClient.Encrypt(ctx, req)
}

func (c gcpClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	return c.KeyManagementClient.Decrypt(ctx, req)
}

func (c gcpClient) GenerateRandomBytes(ctx context.Context, req *kmspb.GenerateRandomBytesRequest) (*kmspb.GenerateRandomBytesResponse, error) {
	return c.KeyManagementClient.GenerateRandomBytes(ctx, req)
}

type gcpProvider struct {
	client   GCPKMSClient
	keyName  string
	location string
}

// NewGCPKMSVault creates a vault over Cloud KMS. KeyID must be a full
// CryptoKey resource name:
//
//	projects/P/locations/L/keyRings/R/cryptoKeys/K
func NewGCPKMSVault(ctx context.Context, config *KMSConfig, client GCPKMSClient) (*KMSVault, error) {
	if config == nil || config.KeyID == "" {
		return nil, fmt.Errorf("%w: gcp kms key_id is required", types.ErrInvalidParameter)
	}
	parts := strings.Split(config.KeyID, "/")
	if len(parts) != 8 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keyRings" || parts[6] != "cryptoKeys" {
		return nil, fmt.Errorf("%w: gcp kms key_id must be a CryptoKey resource name", types.ErrInvalidParameter)
	}

	if client == nil {
		var opts []option.ClientOption
		if config.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
		}
		if config.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(config.Endpoint))
		}
		c, err := kms.NewKeyManagementClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: create cloud kms client: %w", types.ErrOther, err)
		}
		client = gcpClient{c}
	}

	return newKMSVault(&gcpProvider{
		client:   client,
		keyName:  config.KeyID,
		location: strings.Join(parts[:4], "/"),
	})
}

// crc32c computes the Castagnoli checksum Cloud KMS uses for integrity.
func crc32c(data []byte) int64 {
	return int64(crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)))
}

func (p *gcpProvider) name() string   { return ProviderGCP }
func (p *gcpProvider) keyRef() string { return p.keyName }
func (p *gcpProvider) close() error   { return p.client.Close() }

func (p *gcpProvider) encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	resp, err := p.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                              p.keyName,
		Plaintext:                         plaintext,
		PlaintextCrc32C:                   wrapperspb.Int64(crc32c(plaintext)),
		AdditionalAuthenticatedData:       aad,
		AdditionalAuthenticatedDataCrc32C: wrapperspb.Int64(crc32c(aad)),
	})
	if err != nil {
		return nil, err
	}
	if !resp.GetVerifiedPlaintextCrc32C() || !resp.GetVerifiedAdditionalAuthenticatedDataCrc32C() {
		return nil, errIntegrity
	}
	if resp.GetCiphertextCrc32C() != nil && resp.GetCiphertextCrc32C().GetValue() != crc32c(resp.GetCiphertext()) {
		return nil, errIntegrity
	}
	return resp.GetCiphertext(), nil
}

func (p *gcpProvider) decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	resp, err := p.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                              p.keyName,
		Ciphertext:                        ciphertext,
		CiphertextCrc32C:                  wrapperspb.Int64(crc32c(ciphertext)),
		AdditionalAuthenticatedData:       aad,
		AdditionalAuthenticatedDataCrc32C: wrapperspb.Int64(crc32c(aad)),
	})
	if err != nil {
		return nil, err
	}
	if resp.GetPlaintextCrc32C() != nil && resp.GetPlaintextCrc32C().GetValue() != crc32c(resp.GetPlaintext()) {
		return nil, errIntegrity
	}
	return resp.GetPlaintext(), nil
}

func (p *gcpProvider) random(ctx context.Context, n int) ([]byte, error) {
	return readChunked(n, gcpMaxRandom, func(size int) ([]byte, error) {
		resp, err := p.client.GenerateRandomBytes(ctx, &kmspb.GenerateRandomBytesRequest{
			Location:        p.location,
			LengthBytes:     int32(size),
			ProtectionLevel: kmspb.ProtectionLevel_HSM,
		})
		if err != nil {
			return nil, err
		}
		if resp.GetDataCrc32C() != nil && resp.GetDataCrc32C().GetValue() != crc32c(resp.GetData()) {
			return nil, errIntegrity
		}
		return resp.GetData(), nil
	})
}
