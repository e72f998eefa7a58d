package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"branchchat/pkg/logger"
	"branchchat/pkg/models"
)

var (
	// ErrNotFound is returned when a referenced document is absent.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSecret is returned when inserting a credential whose
	// secret already exists (uniqueness constraint on the secret field).
	ErrDuplicateSecret = errors.New("credential secret already exists")
)

// Store is a Pebble-backed document store for conversations, credentials
// and settings. It is constructed by the process entry point via Open and
// passed explicitly to the components that need it; there is no package
// global handle. Key layout:
//
//	conv:<id>              conversation JSON
//	cred:<id>              credential JSON
//	cred:secret:<sha256>   secret -> credential id (uniqueness index)
//	setting:<key>          setting value
type Store struct {
	db   *pebble.DB
	path string
}

// seq reduces id collisions when documents are created within the same
// nanosecond.
var seq uint64

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying pebble DB.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

// GenID returns a new document id from the current nanosecond timestamp
// and an atomic sequence counter.
func GenID(prefix string) string {
	n := time.Now().UTC().UnixNano()
	c := atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, n, c)
}

func convKey(id string) []byte    { return []byte("conv:" + id) }
func credKey(id string) []byte    { return []byte("cred:" + id) }
func settingKey(key string) []byte { return []byte("setting:" + key) }

func secretIndexKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return []byte("cred:secret:" + hex.EncodeToString(sum[:]))
}

func (s *Store) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// --- conversations ---

// SaveConversation upserts the full conversation document.
func (s *Store) SaveConversation(c models.Conversation) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := s.db.Set(convKey(c.ID), b, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", "conversation", c.ID, "error", err)
		return err
	}
	logger.Debug("conversation_saved", "conversation", c.ID, "branches", len(c.Branches))
	return nil
}

// GetConversation loads a conversation by id, or ErrNotFound.
func (s *Store) GetConversation(id string) (models.Conversation, error) {
	var c models.Conversation
	if !s.Ready() {
		return c, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, err := s.get(convKey(id))
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid stored conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns all conversations, newest first.
func (s *Store) ListConversations() ([]models.Conversation, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	vals, err := s.scan([]byte("conv:"))
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(vals))
	for _, v := range vals {
		var c models.Conversation
		if err := json.Unmarshal(v, &c); err != nil {
			logger.Warn("skip_invalid_conversation", "error", err)
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	return out, nil
}

// DeleteConversation removes the whole document; branches cascade with it.
func (s *Store) DeleteConversation(id string) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if _, err := s.get(convKey(id)); err != nil {
		return err
	}
	if err := s.db.Delete(convKey(id), pebble.Sync); err != nil {
		logger.Error("delete_conversation_failed", "conversation", id, "error", err)
		return err
	}
	logger.Info("conversation_deleted", "conversation", id)
	return nil
}

// --- credentials ---

// InsertCredential stores a new credential. The secret is unique across
// the pool; duplicate inserts fail with ErrDuplicateSecret.
func (s *Store) InsertCredential(c models.Credential) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	idx := secretIndexKey(c.Secret)
	if _, err := s.get(idx); err == nil {
		return ErrDuplicateSecret
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := s.db.Set(credKey(c.ID), b, pebble.Sync); err != nil {
		logger.Error("save_credential_failed", "credential", c.ID, "error", err)
		return err
	}
	if err := s.db.Set(idx, []byte(c.ID), pebble.Sync); err != nil {
		logger.Error("save_credential_index_failed", "credential", c.ID, "error", err)
		return err
	}
	logger.Info("credential_created", "credential", c.ID)
	return nil
}

// SaveCredential upserts an existing credential record (usage/cool-down
// updates). Last write wins; the pool tolerates races on these fields.
func (s *Store) SaveCredential(c models.Credential) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	return s.db.Set(credKey(c.ID), b, pebble.Sync)
}

// GetCredential loads a credential by id, or ErrNotFound.
func (s *Store) GetCredential(id string) (models.Credential, error) {
	var c models.Credential
	if !s.Ready() {
		return c, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, err := s.get(credKey(id))
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid stored credential: %w", err)
	}
	return c, nil
}

// ListCredentials returns all credentials in unspecified order; callers
// sort for their own needs.
func (s *Store) ListCredentials() ([]models.Credential, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	vals, err := s.scanExcluding([]byte("cred:"), []byte("cred:secret:"))
	if err != nil {
		return nil, err
	}
	out := make([]models.Credential, 0, len(vals))
	for _, v := range vals {
		var c models.Credential
		if err := json.Unmarshal(v, &c); err != nil {
			logger.Warn("skip_invalid_credential", "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteCredential removes a credential and its secret index entry.
func (s *Store) DeleteCredential(id string) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	c, err := s.GetCredential(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(secretIndexKey(c.Secret), pebble.Sync); err != nil {
		return err
	}
	if err := s.db.Delete(credKey(id), pebble.Sync); err != nil {
		logger.Error("delete_credential_failed", "credential", id, "error", err)
		return err
	}
	logger.Info("credential_deleted", "credential", id)
	return nil
}

// --- settings ---

// GetSetting returns the stored value for key, or ErrNotFound.
func (s *Store) GetSetting(key string) (string, error) {
	if !s.Ready() {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, err := s.get(settingKey(key))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// PutSetting upserts a setting value.
func (s *Store) PutSetting(key, value string) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := s.db.Set(settingKey(key), []byte(value), pebble.Sync); err != nil {
		logger.Error("save_setting_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("setting_saved", "key", key)
	return nil
}

// --- iteration helpers ---

func (s *Store) scan(prefix []byte) ([][]byte, error) {
	return s.scanExcluding(prefix, nil)
}

func (s *Store) scanExcluding(prefix, exclude []byte) ([][]byte, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if exclude != nil && bytes.HasPrefix(iter.Key(), exclude) {
			continue
		}
		out = append(out, append([]byte(nil), iter.Value()...))
	}
	return out, iter.Error()
}
