package repository

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const snapshotCollection = "snapshots"

// Firestore stores one document per session in the snapshots collection.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore repository for projectID and databaseID
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return goerr.New("snapshot requires a session id")
	}

	doc := *snap
	doc.TreeJSON = string(snap.Tree)
	if _, err := r.client.Collection(snapshotCollection).Doc(snap.SessionID).Set(ctx, &doc); err != nil {
		return goerr.Wrap(err, "failed to put snapshot", goerr.V("session", snap.SessionID))
	}
	return nil
}

func (r *Firestore) GetSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	doc, err := r.client.Collection(snapshotCollection).Doc(sessionID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(ErrNotFound, "no snapshot in firestore", goerr.V("session", sessionID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get snapshot", goerr.V("session", sessionID))
	}
	return decodeSnapshot(doc)
}

func (r *Firestore) ListSnapshots(ctx context.Context, offset, limit int) ([]*model.Snapshot, error) {
	q := r.client.Collection(snapshotCollection).
		OrderBy("finished_at", firestore.Desc).
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var snaps []*model.Snapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate snapshots")
		}
		snap, err := decodeSnapshot(doc)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func decodeSnapshot(doc *firestore.DocumentSnapshot) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := doc.DataTo(&snap); err != nil {
		return nil, goerr.Wrap(err, "failed to decode snapshot", goerr.V("doc", doc.Ref.ID))
	}
	if snap.TreeJSON != "" {
		snap.Tree = json.RawMessage(snap.TreeJSON)
	}
	return &snap, nil
}
