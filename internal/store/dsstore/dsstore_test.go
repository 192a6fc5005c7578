package dsstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/tckz/gcp-view-counter/internal/counter"
)

func TestRecordFromProperties(t *testing.T) {
	tests := []struct {
		name      string
		props     datastore.PropertyList
		wantViews *int64
		wantErr   error
	}{
		{
			name:      "views present",
			props:     datastore.PropertyList{{Name: "id", Value: int64(1)}, {Name: "views", Value: int64(17)}},
			wantViews: ptr(17),
		},
		{
			name:  "views absent",
			props: datastore.PropertyList{{Name: "id", Value: int64(1)}},
		},
		{
			name:    "views is a string",
			props:   datastore.PropertyList{{Name: "views", Value: "17"}},
			wantErr: counter.ErrMissingField,
		},
		{
			name:    "views is a float",
			props:   datastore.PropertyList{{Name: "views", Value: 17.0}},
			wantErr: counter.ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := recordFromProperties(counter.FixedID, tt.props)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("recordFromProperties: %v", err)
			}
			if rec.ID != counter.FixedID {
				t.Errorf("expected id %d, got %d", counter.FixedID, rec.ID)
			}
			switch {
			case tt.wantViews == nil && rec.Views != nil:
				t.Errorf("expected nil views, got %d", *rec.Views)
			case tt.wantViews != nil && (rec.Views == nil || *rec.Views != *tt.wantViews):
				t.Errorf("expected views %d, got %v", *tt.wantViews, rec.Views)
			}
		})
	}
}

func TestPropertiesFromRecord(t *testing.T) {
	props := propertiesFromRecord(counter.NewRecord(counter.FixedID, 3))
	if len(props) != 2 || props[0].Name != "id" || props[1].Name != "views" || props[1].Value != int64(3) {
		t.Errorf("unexpected properties: %+v", props)
	}

	props = propertiesFromRecord(&counter.Record{ID: counter.FixedID})
	if len(props) != 1 || props[0].Name != "id" {
		t.Errorf("unexpected properties: %+v", props)
	}
}

func TestKey(t *testing.T) {
	s := New(nil, WithKind("Clicks"), WithNamespace("staging"))
	key := s.Key(counter.FixedID)
	if key.Kind != "Clicks" || key.ID != 1 || key.Namespace != "staging" || key.Parent != nil {
		t.Errorf("unexpected key: %v", key)
	}
}

// Requires the Datastore emulator, e.g. `gcloud beta emulators datastore start`.
func TestStoreWithEmulator(t *testing.T) {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("skip: DATASTORE_EMULATOR_HOST is not set")
	}

	ctx := context.Background()
	cl, err := datastore.NewClient(ctx, "view-counter-test")
	if err != nil {
		t.Fatalf("datastore.NewClient: %v", err)
	}
	defer cl.Close()

	// a fresh namespace per run keeps runs independent
	s := New(cl, WithNamespace("test-"+uuid.New().String()))
	defer cl.Delete(ctx, s.Key(counter.FixedID))

	if _, err := s.Get(ctx, counter.FixedID); !errors.Is(err, counter.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := s.Create(ctx, counter.NewRecord(counter.FixedID, 0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, counter.NewRecord(counter.FixedID, 0)); !errors.Is(err, counter.ErrRecordExists) {
		t.Fatalf("expected ErrRecordExists, got %v", err)
	}

	h, err := counter.NewHandler(s)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	for want := int64(1); want <= 3; want++ {
		got, err := h.Handle(ctx, nil)
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	n, err := s.Increment(ctx, counter.FixedID, 1)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4, got %d", n)
	}
}

func ptr(n int64) *int64 {
	return &n
}
