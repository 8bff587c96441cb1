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
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// awsContextKey is the EncryptionContext entry carrying the vault context
const awsContextKey = "aad"

// awsMaxRandom is the GenerateRandom per-call limit
const awsMaxRandom = 1024

// AWSKMSClient is the subset of the AWS KMS API the vault calls.
type AWSKMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	GenerateRandom(ctx context.Context, params *kms.GenerateRandomInput, optFns ...func(*kms.Options)) (*kms.GenerateRandomOutput, error)
}

type awsProvider struct {
	client AWSKMSClient
	keyID  string
}

// NewAWSKMSVault creates a vault over AWS KMS. A nil client is built from
// the default credential chain, or from static credentials when given.
func NewAWSKMSVault(ctx context.Context, config *KMSConfig, client AWSKMSClient) (*KMSVault, error) {
	if config == nil || config.KeyID == "" {
		return nil, fmt.Errorf("%w: aws kms key_id is required", types.ErrInvalidParameter)
	}
	if client == nil {
		c, err := newAWSClient(ctx, config)
		if err != nil {
			return nil, err
		}
		client = c
	}
	return newKMSVault(&awsProvider{client: client, keyID: config.KeyID})
}

func newAWSClient(ctx context.Context, config *KMSConfig) (*kms.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, config.SessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", types.ErrOther, err)
	}

	var clientOpts []func(*kms.Options)
	if config.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	return kms.NewFromConfig(cfg, clientOpts...), nil
}

func encryptionContext(aad []byte) map[string]string {
	return map[string]string{awsContextKey: base64.StdEncoding.EncodeToString(aad)}
}

func (p *awsProvider) name() string   { return ProviderAWS }
func (p *awsProvider) keyRef() string { return p.keyID }
func (p *awsProvider) close() error   { return nil }

func (p *awsProvider) encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	out, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(p.keyID),
		Plaintext:         plaintext,
		EncryptionContext: encryptionContext(aad),
	})
	if err != nil {
		return nil, err
	}
	return out.CiphertextBlob, nil
}

func (p *awsProvider) decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(p.keyID),
		CiphertextBlob:    ciphertext,
		EncryptionContext: encryptionContext(aad),
	})
	if err != nil {
		return nil, err
	}
	return out.Plaintext, nil
}

func (p *awsProvider) random(ctx context.Context, n int) ([]byte, error) {
	return readChunked(n, awsMaxRandom, func(size int) ([]byte, error) {
		out, err := p.client.GenerateRandom(ctx, &kms.GenerateRandomInput{NumberOfBytes: aws.Int32(int32(size))})
		if err != nil {
			return nil, err
		}
		return out.Plaintext, nil
	})
}
