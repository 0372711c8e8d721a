package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/leansocial/shell/internal/crypto"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	_ SessionStore = (*FirestoreStore)(nil)
	_ Watcher      = (*FirestoreStore)(nil)
)

// FirestoreStore keeps one document per profile. Deletion is recorded as a
// tombstone so watchers can tell who removed the session.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
	origin     string
}

// SessionDoc is the Firestore representation of a stored session
type SessionDoc struct {
	Data      string    `firestore:"data"`
	Deleted   bool      `firestore:"deleted"`
	Origin    string    `firestore:"origin"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a new Firestore-backed session store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
		encryptor:  encryptor,
		origin:     uuid.NewString(),
	}, nil
}

func (s *FirestoreStore) doc(profile string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(profile)
}

func (s *FirestoreStore) Load(ctx context.Context, profile string) (*session.Snapshot, error) {
	snap, err := s.doc(profile).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from Firestore: %w", err)
	}
	return s.decode(snap)
}

func (s *FirestoreStore) decode(snap *firestore.DocumentSnapshot) (*session.Snapshot, error) {
	var doc SessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session document: %w", err)
	}
	if doc.Deleted || doc.Data == "" {
		return nil, ErrSessionNotFound
	}
	return openSnapshot(s.encryptor, doc.Data)
}

func (s *FirestoreStore) Save(ctx context.Context, profile string, snap *session.Snapshot) error {
	sealed, err := sealSnapshot(s.encryptor, snap)
	if err != nil {
		return err
	}
	doc := SessionDoc{Data: sealed, Origin: s.origin, UpdatedAt: time.Now()}
	if _, err := s.doc(profile).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store session in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, profile string) error {
	doc := SessionDoc{Deleted: true, Origin: s.origin, UpdatedAt: time.Now()}
	if _, err := s.doc(profile).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to delete session from Firestore: %w", err)
	}
	return nil
}

// Watch follows the profile document. The first snapshot describes the
// current state rather than a change and is skipped.
func (s *FirestoreStore) Watch(ctx context.Context, profile string) (<-chan Event, error) {
	iter := s.doc(profile).Snapshots(ctx)
	out := make(chan Event)

	go func() {
		defer close(out)
		defer iter.Stop()

		first := true
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					log.LogErrorWithFields("storage", "Firestore session watch stopped", map[string]any{
						"profile": profile,
						"error":   err.Error(),
					})
				}
				return
			}
			if first {
				first = false
				continue
			}

			ev, ok := s.eventFrom(profile, snap)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *FirestoreStore) eventFrom(profile string, snap *firestore.DocumentSnapshot) (Event, bool) {
	if !snap.Exists() {
		return Event{Profile: profile}, true
	}

	var doc SessionDoc
	if err := snap.DataTo(&doc); err != nil {
		log.LogWarnWithFields("storage", "Ignoring malformed session document", map[string]any{
			"profile": profile,
			"error":   err.Error(),
		})
		return Event{}, false
	}
	if doc.Origin == s.origin {
		return Event{}, false
	}
	if doc.Deleted {
		return Event{Profile: profile}, true
	}

	sess, err := openSnapshot(s.encryptor, doc.Data)
	if err != nil {
		log.LogErrorWithFields("storage", "Failed to open announced session", map[string]any{
			"profile": profile,
			"error":   err.Error(),
		})
		return Event{}, false
	}
	return Event{Profile: profile, Snapshot: sess}, true
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
