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

// Package keymanager is the session-keyed key lifecycle on top of the
// signing protocols and the vault.
//
// A session is created by GenerateKey and holds one public key and the
// vault-sealed share set produced for it. Signing and verification only
// read a session; rotation, restore and deletion replace its state
// atomically. Sessions are independent: operations on different sessions
// never block one another, and no operation spans two sessions.
//
// Shares are sealed with the encryption context "<session_id>/<index>", so
// a share ciphertext cannot be replayed into another session or slot.
package keymanager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/adapters/audit"
	"github.com/jeremyhahn/go-mpc/pkg/correlation"
	"github.com/jeremyhahn/go-mpc/pkg/crypto/ecc"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/metrics"
	"github.com/jeremyhahn/go-mpc/pkg/protocol"
	"github.com/jeremyhahn/go-mpc/pkg/storage"
	"github.com/jeremyhahn/go-mpc/pkg/threshold"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// ErrUnknownSession is returned for session ids with no key.
var ErrUnknownSession = fmt.Errorf("%w: session not found", types.ErrInvalidParameter)

// KeyManager orchestrates key generation, signing and share lifecycle per
// session. It is safe for concurrent use.
type KeyManager struct {
	vault   enclave.Vault
	backend storage.Backend
	config  *Config
	logger  logging.Logger
	auditor audit.Auditor
	now     func() time.Time
	store   *store
}

// New creates a KeyManager and reloads persisted sessions from
// config.Storage.
func New(ctx context.Context, config *Config) (*KeyManager, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", types.ErrInvalidParameter)
	}
	cfg := *config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := protocol.NewProtocol(cfg.DefaultProtocol, cfg.Protocol); err != nil {
		return nil, err
	}

	m := &KeyManager{
		vault:   cfg.Vault,
		backend: cfg.Storage,
		config:  &cfg,
		logger:  cfg.Logger,
		auditor: cfg.Auditor,
		now:     cfg.Now,
		store:   newStore(),
	}
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	metrics.SetSessionsTotal(m.store.len())
	metrics.SetVaultAvailable(string(m.vault.Kind()), m.vault.Available())
	return m, nil
}

// Auditor returns the audit trail of this manager.
func (m *KeyManager) Auditor() audit.Auditor {
	return m.auditor
}

// Vault returns the vault sealing this manager's shares.
func (m *KeyManager) Vault() enclave.Vault {
	return m.vault
}

// protocolFor builds the strategy for tag with entropy drawn from the vault
// under ctx.
func (m *KeyManager) protocolFor(ctx context.Context, tag types.ProtocolType) (protocol.Protocol, error) {
	cfg := *m.config.Protocol
	cfg.Random = vaultReader{ctx: ctx, vault: m.vault}
	return protocol.NewProtocol(tag, &cfg)
}

// normalize fills the curve and protocol defaults of a scheme.
func (m *KeyManager) normalize(scheme types.ThresholdScheme) types.ThresholdScheme {
	if scheme.Curve == "" {
		scheme.Curve = types.CurveSecp256k1
	}
	if scheme.Protocol == "" {
		scheme.Protocol = m.config.DefaultProtocol
	}
	return scheme
}

// shareContext is the vault encryption context of one share.
func shareContext(sessionID string, index int) []byte {
	return []byte(sessionID + "/" + strconv.Itoa(index))
}

// auditEvents maps operations to the audit events they produce.
var auditEvents = map[string]audit.EventType{
	metrics.OpKeyGen:  audit.EventKeyGenerate,
	metrics.OpSign:    audit.EventSign,
	metrics.OpVerify:  audit.EventVerify,
	metrics.OpCombine: audit.EventCombine,
	metrics.OpRotate:  audit.EventRotate,
	metrics.OpBackup:  audit.EventBackup,
	metrics.OpRestore: audit.EventRestore,
	metrics.OpDelete:  audit.EventDelete,
	metrics.OpAttest:  audit.EventAttest,
}

// observe records metrics, the audit event and a log line for the outcome
// of an operation.
func (m *KeyManager) observe(ctx context.Context, op, sessionID string, start time.Time, err error) {
	vault := string(m.vault.Kind())
	metrics.RecordOperation(op, vault, metrics.Status(err), time.Since(start).Seconds())

	event := &audit.Event{
		Type:          auditEvents[op],
		Outcome:       audit.OutcomeSuccess,
		SessionID:     sessionID,
		Principal:     audit.PrincipalFrom(ctx),
		CorrelationID: correlation.GetCorrelationID(ctx),
		Vault:         vault,
	}
	if err != nil {
		event.Outcome = audit.OutcomeFailure
		event.ErrorKind = types.KindOf(err).String()
	}
	if aerr := m.auditor.Record(ctx, event); aerr != nil {
		m.logger.ErrorContext(ctx, "audit record failed",
			logging.String("operation", op), logging.Error(aerr))
	}

	if err != nil {
		kind := types.KindOf(err)
		metrics.RecordError(op, vault, kind.String())
		m.logger.WarnContext(ctx, "operation failed",
			logging.String("operation", op),
			logging.String("session_id", sessionID),
			logging.String("error_kind", kind.String()),
			logging.Error(err))
		return
	}
	m.logger.DebugContext(ctx, "operation completed",
		logging.String("operation", op),
		logging.String("session_id", sessionID))
}

// lockSession returns the live session for id with its opMu held, creating
// it when create is set. A session deleted while the caller waited is
// skipped in favour of its replacement.
func (m *KeyManager) lockSession(id string, create bool) (*session, error) {
	for {
		var s *session
		if create {
			s, _ = m.store.getOrCreate(id)
		} else {
			var ok bool
			if s, ok = m.store.get(id); !ok || !s.ready() {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
			}
		}

		s.opMu.Lock()
		s.mu.RLock()
		deleted := s.deleted
		s.mu.RUnlock()
		if !deleted {
			return s, nil
		}
		s.opMu.Unlock()
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
		}
	}
}

// readSession returns a snapshot of a session that has a key.
func (m *KeyManager) readSession(id string) (*state, error) {
	s, ok := m.store.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	st := s.snapshot()
	if st.PublicKey == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return st, nil
}

// commit persists next and installs it on s. The in-memory state changes
// only after the record is durable, so a failed write leaves the prior
// state in place.
func (m *KeyManager) commit(s *session, next *state) error {
	if err := m.persist(s.id, next); err != nil {
		return err
	}
	s.install(next)
	return nil
}

// seal encrypts plaintext shares into KeyShare records.
func (m *KeyManager) seal(ctx context.Context, sessionID string, scheme types.ThresholdScheme, material *protocol.KeyMaterial) ([]types.KeyShare, error) {
	created := m.now().UTC()
	out := make([]types.KeyShare, len(material.Shares))
	for i, share := range material.Shares {
		index := i + 1
		ct, err := m.vault.Encrypt(ctx, share, shareContext(sessionID, index))
		if err != nil {
			return nil, fmt.Errorf("seal share %d: %w", index, err)
		}
		out[i] = types.KeyShare{
			Index:          index,
			Total:          scheme.TotalParticipants,
			Threshold:      scheme.Threshold,
			EncryptedShare: ct,
			CreatedAt:      created,
		}
		if material.Proofs != nil {
			out[i].Proof = slices.Clone(material.Proofs[i])
		}
	}
	return out, nil
}

// open decrypts the given shares. The caller must scrub the result.
func (m *KeyManager) open(ctx context.Context, sessionID string, shares []types.KeyShare) ([][]byte, error) {
	out := make([][]byte, 0, len(shares))
	for _, ks := range shares {
		pt, err := m.vault.Decrypt(ctx, ks.EncryptedShare, shareContext(sessionID, ks.Index))
		if err != nil {
			threshold.ZeroAll(out)
			return nil, fmt.Errorf("open share %d: %w", ks.Index, err)
		}
		out = append(out, pt)
	}
	return out, nil
}

// validateParticipants checks that participant ids, when given, name every
// share exactly once.
func validateParticipants(participants []string, total int) error {
	if len(participants) == 0 {
		return nil
	}
	if len(participants) != total {
		return fmt.Errorf("%w: %d participants for %d shares",
			types.ErrInvalidParameter, len(participants), total)
	}
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p == "" {
			return fmt.Errorf("%w: empty participant id", types.ErrInvalidParameter)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate participant %q", types.ErrInvalidParameter, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// GenerateKey mints a key for req.Scheme and stores its sealed shares
// under req.SessionID. Reusing a session id replaces that session's key
// and shares.
func (m *KeyManager) GenerateKey(ctx context.Context, req *types.KeyGenRequest) (resp *types.KeyGenResponse, err error) {
	start := time.Now()
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", types.ErrInvalidParameter)
	}
	defer func() { m.observe(ctx, metrics.OpKeyGen, req.SessionID, start, err) }()

	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", types.ErrInvalidParameter)
	}
	scheme := m.normalize(req.Scheme)
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	if err := validateParticipants(req.Participants, scheme.TotalParticipants); err != nil {
		return nil, err
	}
	proto, err := m.protocolFor(ctx, scheme.Protocol)
	if err != nil {
		return nil, err
	}

	s, err := m.lockSession(req.SessionID, true)
	if err != nil {
		return nil, err
	}
	defer s.opMu.Unlock()
	existed := s.ready()
	s.setStatus(types.StatusInProgress)
	defer func() {
		if err == nil {
			return
		}
		if existed {
			s.setStatus(types.StatusFailed)
			return
		}
		// A failed first generation leaves no session behind
		s.mu.Lock()
		s.deleted = true
		s.mu.Unlock()
		m.store.remove(req.SessionID, s)
		metrics.SetSessionsTotal(m.store.len())
	}()

	material, err := proto.GenerateKey(&scheme)
	if err != nil {
		return nil, err
	}
	defer material.Zero()

	address, err := ecc.Address(material.PublicKey)
	if err != nil {
		return nil, err
	}
	shares, err := m.seal(ctx, req.SessionID, scheme, material)
	if err != nil {
		return nil, err
	}

	prev := s.snapshot()
	now := m.now().UTC()
	next := &state{
		Scheme:       scheme,
		PublicKey:    material.PublicKey,
		Address:      address,
		Participants: slices.Clone(req.Participants),
		Metadata:     req.Metadata,
		Shares:       shares,
		Generation:   prev.Generation + 1,
		Status:       types.StatusCompleted,
		CreatedAt:    now,
	}
	if err := m.commit(s, next); err != nil {
		return nil, err
	}
	metrics.SetSessionsTotal(m.store.len())

	m.logger.InfoContext(ctx, "key generated",
		logging.String("session_id", req.SessionID),
		logging.Int("threshold", scheme.Threshold),
		logging.Int("total", scheme.TotalParticipants),
		logging.String("protocol", string(scheme.Protocol)),
		logging.String("address", address))

	out := make([]types.KeyShare, len(shares))
	for i := range shares {
		out[i] = cloneKeyShare(shares[i])
	}
	return &types.KeyGenResponse{
		SessionID: req.SessionID,
		PublicKey: *clonePublicKey(material.PublicKey),
		Address:   address,
		KeyShares: out,
		Status:    types.StatusCompleted,
	}, nil
}

// Attest returns the vault's attestation statement over challenge. The
// challenge must be non-empty and at most 64 bytes.
func (m *KeyManager) Attest(ctx context.Context, challenge []byte) (statement []byte, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, metrics.OpAttest, "", start, err) }()

	if len(challenge) == 0 || len(challenge) > maxChallenge {
		return nil, fmt.Errorf("%w: challenge must be 1 to %d bytes, got %d",
			types.ErrInvalidParameter, maxChallenge, len(challenge))
	}
	return m.vault.Attest(ctx, challenge)
}

const maxChallenge = 64

// GetPublicKey returns the public key of a session.
func (m *KeyManager) GetPublicKey(sessionID string) (*types.PublicKey, error) {
	st, err := m.readSession(sessionID)
	if err != nil {
		return nil, err
	}
	return st.PublicKey, nil
}

// GetAddress returns the address derived from the session public key.
func (m *KeyManager) GetAddress(sessionID string) (string, error) {
	st, err := m.readSession(sessionID)
	if err != nil {
		return "", err
	}
	return st.Address, nil
}

// GetKeyShare returns the sealed share stored at index (1-based) for a
// session.
func (m *KeyManager) GetKeyShare(sessionID string, index int) (*types.KeyShare, error) {
	st, err := m.readSession(sessionID)
	if err != nil {
		return nil, err
	}
	for _, ks := range st.Shares {
		if ks.Index == index {
			return &ks, nil
		}
	}
	return nil, fmt.Errorf("%w: no share %d in session %s", types.ErrInvalidParameter, index, sessionID)
}

// resolveParticipants maps participant names to share indices. A name is
// either a participant id registered at key generation or a decimal share
// index.
func resolveParticipants(st *state, names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no participants specified", types.ErrInvalidParameter)
	}
	indices := make([]int, 0, len(names))
	seen := make(map[int]struct{}, len(names))
	for _, name := range names {
		idx := slices.Index(st.Participants, name) + 1
		if idx == 0 {
			n, err := strconv.Atoi(name)
			if err != nil || n < 1 || n > st.Scheme.TotalParticipants {
				return nil, fmt.Errorf("%w: unknown participant %q", types.ErrInvalidParameter, name)
			}
			idx = n
		}
		if _, dup := seen[idx]; dup {
			return nil, fmt.Errorf("%w: participant %q named twice", types.ErrInvalidParameter, name)
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	return indices, nil
}

// Sign produces a signature from the shares of the named participants.
// MessageHash is signed as a message: the signer digests it with SHA-256.
func (m *KeyManager) Sign(ctx context.Context, req *types.SignRequest) (resp *types.SignResponse, err error) {
	start := time.Now()
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", types.ErrInvalidParameter)
	}
	defer func() { m.observe(ctx, metrics.OpSign, req.SessionID, start, err) }()

	st, err := m.readSession(req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.DerivationPath != "" {
		return nil, fmt.Errorf("%w: derivation paths are not supported", types.ErrInvalidParameter)
	}
	if len(req.MessageHash) == 0 {
		return nil, fmt.Errorf("%w: message hash is required", types.ErrInvalidParameter)
	}
	indices, err := resolveParticipants(st, req.Participants)
	if err != nil {
		return nil, err
	}
	if len(indices) < st.Scheme.Threshold {
		return nil, &threshold.InsufficientSharesError{Have: len(indices), Threshold: st.Scheme.Threshold}
	}

	selected := make([]types.KeyShare, 0, len(indices))
	for _, idx := range indices {
		i := slices.IndexFunc(st.Shares, func(ks types.KeyShare) bool { return ks.Index == idx })
		if i < 0 {
			return nil, fmt.Errorf("%w: share %d is not held for session %s", types.ErrInvalidState, idx, req.SessionID)
		}
		selected = append(selected, st.Shares[i])
	}

	proto, err := m.protocolFor(ctx, st.Scheme.Protocol)
	if err != nil {
		return nil, err
	}
	plain, err := m.open(ctx, req.SessionID, selected)
	if err != nil {
		return nil, err
	}
	defer threshold.ZeroAll(plain)

	signature, contributions, err := proto.Sign(&st.Scheme, st.PublicKey, plain, req.MessageHash)
	if err != nil {
		return nil, err
	}
	return &types.SignResponse{
		SessionID:       req.SessionID,
		Signature:       signature,
		SignatureShares: contributions,
		Status:          types.StatusCompleted,
	}, nil
}

// VerifySignature checks signature over message under the session key.
func (m *KeyManager) VerifySignature(ctx context.Context, sessionID string, message []byte, signature *types.Signature) (valid bool, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, metrics.OpVerify, sessionID, start, err) }()

	st, err := m.readSession(sessionID)
	if err != nil {
		return false, err
	}
	proto, err := m.protocolFor(ctx, st.Scheme.Protocol)
	if err != nil {
		return false, err
	}
	return proto.VerifySignature(st.PublicKey, message, signature)
}

// Verify is VerifySignature over the request contract.
func (m *KeyManager) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", types.ErrInvalidParameter)
	}
	valid, err := m.VerifySignature(ctx, req.SessionID, req.Message, &req.Signature)
	if err != nil {
		return nil, err
	}
	return &types.VerifyResponse{Valid: valid}, nil
}

// CombineSignatureShares finishes a signature from shares presented by
// participants. Each SignatureShare carries the participant's sealed share
// (KeyShare.EncryptedShare) and its index. Shares that decrypt but are not
// part of the session's current share set, such as shares issued before a
// rotation, are rejected with types.ErrInvalidState.
func (m *KeyManager) CombineSignatureShares(ctx context.Context, sessionID string, message []byte, shares []types.SignatureShare) (signature *types.Signature, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, metrics.OpCombine, sessionID, start, err) }()

	st, err := m.readSession(sessionID)
	if err != nil {
		return nil, err
	}
	if len(shares) < st.Scheme.Threshold {
		return nil, &threshold.InsufficientSharesError{Have: len(shares), Threshold: st.Scheme.Threshold}
	}
	proto, err := m.protocolFor(ctx, st.Scheme.Protocol)
	if err != nil {
		return nil, err
	}

	current := make(map[int]types.KeyShare, len(st.Shares))
	for _, ks := range st.Shares {
		current[ks.Index] = ks
	}

	plain := make([]types.SignatureShare, 0, len(shares))
	defer func() {
		for _, p := range plain {
			clear(p.Share)
		}
	}()
	for _, submitted := range shares {
		stored, ok := current[submitted.Index]
		if !ok {
			return nil, fmt.Errorf("%w: share %d is not held for session %s", types.ErrInvalidState, submitted.Index, sessionID)
		}
		opened, err := m.open(ctx, sessionID, []types.KeyShare{{Index: submitted.Index, EncryptedShare: submitted.Share}})
		if err != nil {
			return nil, err
		}
		share := opened[0]
		plain = append(plain, types.SignatureShare{Index: submitted.Index, Share: share, Proof: stored.Proof})

		if err := checkCurrent(proto, share, submitted, stored); err != nil {
			return nil, err
		}
	}
	return proto.CombineSignatureShares(&st.Scheme, st.PublicKey, message, plain)
}

// checkCurrent reports whether an opened share belongs to the stored share
// set. The ciphertext must match the stored one: every seal is freshly
// nonced, so this also rejects pre-rotation shares at threshold 1, where
// refresh leaves the share value and its commitment unchanged. When the
// set carries proofs the commitment must match too.
func checkCurrent(proto protocol.Protocol, share []byte, submitted types.SignatureShare, stored types.KeyShare) error {
	if !slices.Equal(submitted.Share, stored.EncryptedShare) {
		return fmt.Errorf("%w: share %d is not from the current share set", types.ErrInvalidState, submitted.Index)
	}
	if len(stored.Proof) == 0 {
		return nil
	}
	commitment, err := proto.Commitment(share)
	if err != nil {
		return err
	}
	if !slices.Equal(commitment, stored.Proof) {
		return fmt.Errorf("%w: share %d is not from the current share set", types.ErrInvalidState, submitted.Index)
	}
	return nil
}

// isUnknown reports whether err means the session does not exist.
func isUnknown(err error) bool {
	return errors.Is(err, ErrUnknownSession)
}
