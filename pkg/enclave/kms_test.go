// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package enclave

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// envelope is what the fake services return as ciphertext: the bound
// context followed by the plaintext. Real services would encrypt.
func envelope(binding string, plaintext []byte) []byte {
	return append([]byte(binding+"|"), plaintext...)
}

func openEnvelope(blob []byte, binding string) ([]byte, error) {
	prefix := []byte(binding + "|")
	if !bytes.HasPrefix(blob, prefix) {
		return nil, errors.New("InvalidCiphertextException")
	}
	return blob[len(prefix):], nil
}

func fakeAWS() *MockAWSKMSClient {
	return &MockAWSKMSClient{
		EncryptFunc: func(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
			return &kms.EncryptOutput{CiphertextBlob: envelope(in.EncryptionContext[awsContextKey], in.Plaintext)}, nil
		},
		DecryptFunc: func(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
			pt, err := openEnvelope(in.CiphertextBlob, in.EncryptionContext[awsContextKey])
			if err != nil {
				return nil, err
			}
			return &kms.DecryptOutput{Plaintext: pt}, nil
		},
		GenerateRandomFunc: func(_ context.Context, in *kms.GenerateRandomInput, _ ...func(*kms.Options)) (*kms.GenerateRandomOutput, error) {
			return &kms.GenerateRandomOutput{Plaintext: bytes.Repeat([]byte{0xab}, int(*in.NumberOfBytes))}, nil
		},
	}
}

func fakeGCP() *MockGCPKMSClient {
	return &MockGCPKMSClient{
		EncryptFunc: func(_ context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
			ct := envelope(string(req.AdditionalAuthenticatedData), req.Plaintext)
			return &kmspb.EncryptResponse{
				Ciphertext:                                ct,
				CiphertextCrc32C:                          wrapperspb.Int64(crc32c(ct)),
				VerifiedPlaintextCrc32C:                   req.PlaintextCrc32C.GetValue() == crc32c(req.Plaintext),
				VerifiedAdditionalAuthenticatedDataCrc32C: req.AdditionalAuthenticatedDataCrc32C.GetValue() == crc32c(req.AdditionalAuthenticatedData),
			}, nil
		},
		DecryptFunc: func(_ context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
			pt, err := openEnvelope(req.Ciphertext, string(req.AdditionalAuthenticatedData))
			if err != nil {
				return nil, err
			}
			return &kmspb.DecryptResponse{Plaintext: pt, PlaintextCrc32C: wrapperspb.Int64(crc32c(pt))}, nil
		},
		GenerateRandomBytesFunc: func(_ context.Context, req *kmspb.GenerateRandomBytesRequest) (*kmspb.GenerateRandomBytesResponse, error) {
			if req.Location != "projects/p/locations/global" {
				return nil, fmt.Errorf("bad location %s", req.Location)
			}
			data := bytes.Repeat([]byte{0xcd}, int(req.LengthBytes))
			return &kmspb.GenerateRandomBytesResponse{Data: data, DataCrc32C: wrapperspb.Int64(crc32c(data))}, nil
		},
	}
}

func fakeTransit() *MockTransitClient {
	return &MockTransitClient{
		WriteFunc: func(_ context.Context, path string, data map[string]interface{}) (*vault.Secret, error) {
			switch {
			case strings.HasPrefix(path, "transit/encrypt/shares"):
				pt, _ := base64.StdEncoding.DecodeString(data["plaintext"].(string))
				ct := "vault:v1:" + base64.StdEncoding.EncodeToString(envelope(data["context"].(string), pt))
				return &vault.Secret{Data: map[string]interface{}{"ciphertext": ct}}, nil
			case strings.HasPrefix(path, "transit/decrypt/shares"):
				raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(data["ciphertext"].(string), "vault:v1:"))
				pt, err := openEnvelope(raw, data["context"].(string))
				if err != nil {
					return nil, err
				}
				return &vault.Secret{Data: map[string]interface{}{"plaintext": base64.StdEncoding.EncodeToString(pt)}}, nil
			case strings.HasPrefix(path, "transit/random/"):
				var n int
				_, _ = fmt.Sscanf(path, "transit/random/%d", &n)
				return &vault.Secret{Data: map[string]interface{}{
					"random_bytes": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xef}, n)),
				}}, nil
			}
			return nil, fmt.Errorf("unexpected path %s", path)
		},
	}
}

// fakeAzure wraps data keys under a fixed key version and refuses to
// unwrap under any other.
func fakeAzure() *MockAzureKeyVaultClient {
	kid := azkeys.ID("https://mpc.vault.azure.net/keys/shares/v7")
	return &MockAzureKeyVaultClient{
		WrapKeyFunc: func(_ context.Context, name, _ string, params azkeys.KeyOperationParameters) (azkeys.WrapKeyResponse, error) {
			if *params.Algorithm != azkeys.EncryptionAlgorithmRSAOAEP256 {
				return azkeys.WrapKeyResponse{}, errors.New("BadParameter")
			}
			return azkeys.WrapKeyResponse{KeyOperationResult: azkeys.KeyOperationResult{
				KID:    &kid,
				Result: envelope(name, params.Value),
			}}, nil
		},
		UnwrapKeyFunc: func(_ context.Context, name, version string, params azkeys.KeyOperationParameters) (azkeys.UnwrapKeyResponse, error) {
			if version != "v7" {
				return azkeys.UnwrapKeyResponse{}, errors.New("KeyNotFound")
			}
			dek, err := openEnvelope(params.Value, name)
			if err != nil {
				return azkeys.UnwrapKeyResponse{}, err
			}
			return azkeys.UnwrapKeyResponse{KeyOperationResult: azkeys.KeyOperationResult{KID: &kid, Result: dek}}, nil
		},
	}
}

func kmsVaults(t *testing.T) map[string]*KMSVault {
	t.Helper()
	ctx := context.Background()

	aws, err := NewAWSKMSVault(ctx, &KMSConfig{Provider: ProviderAWS, KeyID: "alias/mpc", Region: "us-east-1"}, fakeAWS())
	require.NoError(t, err)
	gcp, err := NewGCPKMSVault(ctx, &KMSConfig{
		Provider: ProviderGCP,
		KeyID:    "projects/p/locations/global/keyRings/r/cryptoKeys/k",
	}, fakeGCP())
	require.NoError(t, err)
	transit, err := NewTransitVault(&KMSConfig{Provider: ProviderTransit, KeyID: "shares", Address: "http://vault:8200"}, fakeTransit())
	require.NoError(t, err)

	azure, err := NewAzureKeyVault(&KMSConfig{Provider: ProviderAzure, KeyID: "shares", Address: "https://mpc.vault.azure.net"}, fakeAzure())
	require.NoError(t, err)

	return map[string]*KMSVault{ProviderAWS: aws, ProviderGCP: gcp, ProviderTransit: transit, ProviderAzure: azure}
}

func TestKMSVault_RoundTripAndContextBinding(t *testing.T) {
	ctx := context.Background()
	for name, v := range kmsVaults(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, KindKMS, v.Kind())
			assert.Equal(t, name, v.Provider())
			assert.True(t, v.Available())

			ct, err := v.Encrypt(ctx, []byte("share bytes"), []byte("s/1"))
			require.NoError(t, err)

			pt, err := v.Decrypt(ctx, ct, []byte("s/1"))
			require.NoError(t, err)
			assert.Equal(t, []byte("share bytes"), pt)

			_, err = v.Decrypt(ctx, ct, []byte("s/2"))
			assert.ErrorIs(t, err, types.ErrCryptographic)
			assert.ErrorIs(t, err, ErrDecrypt)

			_, err = v.Decrypt(ctx, []byte{0x01}, []byte("s/1"))
			assert.ErrorIs(t, err, ErrMalformedCiphertext)

			require.NoError(t, v.Close())
			_, err = v.Encrypt(ctx, []byte("x"), nil)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestKMSVault_SecureRandom(t *testing.T) {
	ctx := context.Background()
	for name, v := range kmsVaults(t) {
		t.Run(name, func(t *testing.T) {
			out, err := v.SecureRandom(ctx, 2500)
			require.NoError(t, err)
			assert.Len(t, out, 2500)

			empty, err := v.SecureRandom(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, empty)

			_, err = v.SecureRandom(ctx, -1)
			assert.ErrorIs(t, err, types.ErrInvalidParameter)
		})
	}
}

func TestKMSVault_Attest(t *testing.T) {
	v := kmsVaults(t)[ProviderAWS]
	token, err := v.Attest(context.Background(), []byte("c"))
	require.NoError(t, err)

	claims, err := VerifyAttestation(token, []byte("c"), nil)
	require.NoError(t, err)
	assert.Equal(t, AttestationConfiguration, claims.Type)
	assert.Equal(t, ProviderAWS, claims.Provider)
	assert.Equal(t, "alias/mpc", claims.KeyRef)
}

func TestKMSVault_ServiceErrors(t *testing.T) {
	v, err := NewAWSKMSVault(context.Background(), &KMSConfig{KeyID: "k", Region: "r"}, &MockAWSKMSClient{})
	require.NoError(t, err)

	_, err = v.Encrypt(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, types.ErrCryptographic)
	_, err = v.SecureRandom(context.Background(), 8)
	assert.ErrorIs(t, err, types.ErrCryptographic)
}

func TestGCPKMSVault_IntegrityFailure(t *testing.T) {
	client := fakeGCP()
	client.EncryptFunc = func(_ context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
		return &kmspb.EncryptResponse{Ciphertext: []byte("x")}, nil
	}
	v, err := NewGCPKMSVault(context.Background(), &KMSConfig{KeyID: "projects/p/locations/global/keyRings/r/cryptoKeys/k"}, client)
	require.NoError(t, err)

	_, err = v.Encrypt(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, errIntegrity)
}

func TestKMSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *KMSConfig
		wantErr bool
	}{
		{name: "nil", config: nil},
		{name: "disabled", config: &KMSConfig{}},
		{name: "aws", config: &KMSConfig{Provider: ProviderAWS, KeyID: "k", Region: "us-east-1"}},
		{name: "aws without region", config: &KMSConfig{Provider: ProviderAWS, KeyID: "k"}, wantErr: true},
		{name: "gcp", config: &KMSConfig{Provider: ProviderGCP, KeyID: "k"}},
		{name: "transit without address", config: &KMSConfig{Provider: ProviderTransit, KeyID: "k"}, wantErr: true},
		{name: "missing key", config: &KMSConfig{Provider: ProviderGCP}, wantErr: true},
		{name: "azure", config: &KMSConfig{Provider: ProviderAzure, KeyID: "k", Address: "https://v.vault.azure.net"}},
		{name: "azure without address", config: &KMSConfig{Provider: ProviderAzure, KeyID: "k"}, wantErr: true},
		{name: "unknown provider", config: &KMSConfig{Provider: "ibm", KeyID: "k"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidParameter)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewGCPKMSVault_BadResourceName(t *testing.T) {
	_, err := NewGCPKMSVault(context.Background(), &KMSConfig{KeyID: "projects/p/keys/k"}, fakeGCP())
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestAzureKeyVault_Envelope(t *testing.T) {
	ctx := context.Background()
	v := kmsVaults(t)[ProviderAzure]

	a, err := v.Encrypt(ctx, []byte("share"), []byte("s/1"))
	require.NoError(t, err)
	b, err := v.Encrypt(ctx, []byte("share"), []byte("s/1"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each blob has its own data key")

	t.Run("truncated", func(t *testing.T) {
		_, err := v.Decrypt(ctx, a[:len(a)-20], []byte("s/1"))
		assert.ErrorIs(t, err, types.ErrCryptographic)
	})

	t.Run("wrong key version", func(t *testing.T) {
		tampered := bytes.Replace(a, []byte("v7"), []byte("v8"), 1)
		_, err := v.Decrypt(ctx, tampered, []byte("s/1"))
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestKidVersion(t *testing.T) {
	assert.Equal(t, "abc", kidVersion("https://v.vault.azure.net/keys/name/abc"))
	assert.Equal(t, "", kidVersion("https://v.vault.azure.net/keys/name"))
	assert.Equal(t, "", kidVersion(""))
}
