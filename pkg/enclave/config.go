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
	"fmt"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/rand"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Config selects and configures the vault.
type Config struct {
	// EnableHSM prefers a PKCS#11 token when one is reachable
	EnableHSM bool `yaml:"enable_hsm" json:"enable_hsm"`

	// EnableHardwareEnclave prefers a confidential-computing guest
	EnableHardwareEnclave bool `yaml:"enable_hardware_enclave" json:"enable_hardware_enclave"`

	// Algorithm is auto, aes256-gcm or chacha20-poly1305
	Algorithm string `yaml:"encryption_algorithm" json:"encryption_algorithm"`

	// MasterKey is a hex-encoded 32-byte key for the software vault.
	// When neither it nor UnsealShares is set, a random key is generated
	// and shares sealed by this process die with it.
	MasterKey string `yaml:"master_key,omitempty" json:"-"`

	// UnsealShares reconstruct the master key (see ExportUnsealShares)
	UnsealShares []string `yaml:"unseal_shares,omitempty" json:"-"`

	// MaxEncryptions bounds seal operations per key (0 = 2^32)
	MaxEncryptions uint64 `yaml:"max_encryptions,omitempty" json:"max_encryptions,omitempty"`

	Random *rand.Config `yaml:"-" json:"-"`
	HSM    *HSMConfig   `yaml:"hsm,omitempty" json:"hsm,omitempty"`
	TEE    *TEEConfig   `yaml:"tee,omitempty" json:"tee,omitempty"`
	KMS    *KMSConfig   `yaml:"kms,omitempty" json:"kms,omitempty"`

	Logger logging.Logger `yaml:"-" json:"-"`
}

// HSMConfig configures the PKCS#11 vault.
type HSMConfig struct {
	Library    string `yaml:"library" json:"library"`
	TokenLabel string `yaml:"token_label" json:"token_label"`
	PIN        string `yaml:"pin" json:"-"`
	KeyLabel   string `yaml:"key_label" json:"key_label"`
}

// TEEConfig configures the confidential-guest vault.
type TEEConfig struct {
	// Kind reported by the vault. Defaults to generic-tee.
	Kind Kind `yaml:"kind" json:"kind"`
}

// KMS providers
const (
	ProviderAWS     = "aws"
	ProviderGCP     = "gcp"
	ProviderTransit = "transit"
	ProviderAzure   = "azure"
)

// KMSConfig configures the cloud KMS vault.
type KMSConfig struct {
	// Provider is aws, gcp, azure or transit. Empty disables the KMS vault.
	Provider string `yaml:"provider" json:"provider"`

	// KeyID is the AWS key id, ARN or alias; the GCP CryptoKey resource
	// name; the Azure Key Vault key name; or the Transit key name.
	KeyID string `yaml:"key_id" json:"key_id"`

	// Region applies to AWS only
	Region string `yaml:"region,omitempty" json:"region,omitempty"`

	// Endpoint overrides the service endpoint (LocalStack, emulators)
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// AWS static credentials. Optional; the default chain is used otherwise.
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"-"`
	SessionToken    string `yaml:"session_token,omitempty" json:"-"`

	// CredentialsFile applies to GCP only
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`

	// Address is the Transit server or the Azure Key Vault URL.
	// Token and MountPath apply to Transit only.
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`
	Token     string `yaml:"token,omitempty" json:"-"`
	MountPath string `yaml:"mount_path,omitempty" json:"mount_path,omitempty"`

	// Azure service principal. Optional; DefaultAzureCredential is used
	// unless all three are set.
	TenantID     string `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	ClientID     string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"-"`
}

// Validate checks the KMS section for the configured provider.
func (c *KMSConfig) Validate() error {
	if c == nil || c.Provider == "" {
		return nil
	}
	if c.KeyID == "" {
		return fmt.Errorf("%w: kms key_id is required", types.ErrInvalidParameter)
	}
	switch c.Provider {
	case ProviderAWS:
		if c.Region == "" {
			return fmt.Errorf("%w: aws kms region is required", types.ErrInvalidParameter)
		}
	case ProviderGCP:
	case ProviderTransit, ProviderAzure:
		if c.Address == "" {
			return fmt.Errorf("%w: %s address is required", types.ErrInvalidParameter, c.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown kms provider %q", types.ErrInvalidParameter, c.Provider)
	}
	return nil
}
