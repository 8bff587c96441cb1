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

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
)

var errNotMocked = errors.New("mock: function not set")

// MockAWSKMSClient is a mock implementation of AWSKMSClient for testing.
type MockAWSKMSClient struct {
	EncryptFunc        func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	DecryptFunc        func(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	GenerateRandomFunc func(ctx context.Context, params *kms.GenerateRandomInput, optFns ...func(*kms.Options)) (*kms.GenerateRandomOutput, error)
}

func (m *MockAWSKMSClient) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if m.EncryptFunc != nil {
		return m.EncryptFunc(ctx, params, optFns...)
	}
	return nil, errNotMocked
}

func (m *MockAWSKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if m.DecryptFunc != nil {
		return m.DecryptFunc(ctx, params, optFns...)
	}
	return nil, errNotMocked
}

func (m *MockAWSKMSClient) GenerateRandom(ctx context.Context, params *kms.GenerateRandomInput, optFns ...func(*kms.Options)) (*kms.GenerateRandomOutput, error) {
	if m.GenerateRandomFunc != nil {
		return m.GenerateRandomFunc(ctx, params, optFns...)
	}
	return nil, errNotMocked
}

// MockGCPKMSClient is a mock implementation of GCPKMSClient for testing.
type MockGCPKMSClient struct {
	EncryptFunc             func(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error)
	DecryptFunc             func(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
	GenerateRandomBytesFunc func(ctx context.Context, req *kmspb.GenerateRandomBytesRequest) (*kmspb.GenerateRandomBytesResponse, error)
	CloseFunc               func() error
}

func (m *MockGCPKMSClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
	if m.EncryptFunc != nil {
		return m.EncryptFunc(ctx, req)
	}
	return nil, errNotMocked
}

func (m *MockGCPKMSClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	if m.DecryptFunc != nil {
		return m.DecryptFunc(ctx, req)
	}
	return nil, errNotMocked
}

func (m *MockGCPKMSClient) GenerateRandomBytes(ctx context.Context, req *kmspb.GenerateRandomBytesRequest) (*kmspb.GenerateRandomBytesResponse, error) {
	if m.GenerateRandomBytesFunc != nil {
		return m.GenerateRandomBytesFunc(ctx, req)
	}
	return nil, errNotMocked
}

func (m *MockGCPKMSClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockTransitClient is a mock implementation of TransitClient for testing.
type MockTransitClient struct {
	WriteFunc func(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
}

func (m *MockTransitClient) Write(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, path, data)
	}
	return nil, errNotMocked
}

// MockAzureKeyVaultClient is a mock implementation of AzureKeyVaultClient for testing.
type MockAzureKeyVaultClient struct {
	WrapKeyFunc   func(ctx context.Context, name, version string, params azkeys.KeyOperationParameters) (azkeys.WrapKeyResponse, error)
	UnwrapKeyFunc func(ctx context.Context, name, version string, params azkeys.KeyOperationParameters) (azkeys.UnwrapKeyResponse, error)
}

func (m *MockAzureKeyVaultClient) WrapKey(ctx context.Context, name, version string, params azkeys.KeyOperationParameters, _ *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error) {
	if m.WrapKeyFunc != nil {
		return m.WrapKeyFunc(ctx, name, version, params)
	}
	return azkeys.WrapKeyResponse{}, errNotMocked
}

func (m *MockAzureKeyVaultClient) UnwrapKey(ctx context.Context, name, version string, params azkeys.KeyOperationParameters, _ *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error) {
	if m.UnwrapKeyFunc != nil {
		return m.UnwrapKeyFunc(ctx, name, version, params)
	}
	return azkeys.UnwrapKeyResponse{}, errNotMocked
}
