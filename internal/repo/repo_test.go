package repo

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shaiso/Alarmd/internal/domain"
)

// fakeRow — pgx.Row с заранее заданными значениями.
type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.values[i].(int)
		case *string:
			*p = r.values[i].(string)
		case **string:
			if v, ok := r.values[i].(string); ok {
				*p = &v
			}
		case *time.Time:
			*p = r.values[i].(time.Time)
		case **time.Time:
			if v, ok := r.values[i].(time.Time); ok {
				*p = &v
			}
		case **uuid.UUID:
			if v, ok := r.values[i].(uuid.UUID); ok {
				*p = &v
			}
		case *bool:
			*p = r.values[i].(bool)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func TestSelectColumns(t *testing.T) {
	got := selectColumns([]domain.Field{domain.FieldAlarmID, domain.FieldTime, domain.FieldClaim})
	want := "tenant_id, account_id, alarm_id, trigger_time, claim"
	if got != want {
		t.Errorf("selectColumns() = %q, want %q", got, want)
	}
}

func TestScanTrigger_OnlyRequestedFields(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fields := []domain.Field{domain.FieldAction, domain.FieldAlarmID, domain.FieldTime, domain.FieldProcessed}

	// processed = NULL
	row := fakeRow{values: []any{1, 2, "email", 7, at, nil}}

	tr, err := scanTrigger(row, fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tr.Ref != (domain.AccountRef{TenantID: 1, AccountID: 2}) {
		t.Errorf("unexpected ref: %+v", tr.Ref)
	}
	if tr.Action() != domain.ActionEmail {
		t.Errorf("expected EMAIL, got %s", tr.Action())
	}
	if !tr.Time().Equal(at) {
		t.Errorf("expected time %v, got %v", at, tr.Time())
	}

	// запрошенное NULL-поле присутствует, незапрошенное — нет
	if !tr.Contains(domain.FieldProcessed) || tr.Processed() != nil {
		t.Error("processed should be present and null")
	}
	if tr.Contains(domain.FieldClaim) {
		t.Error("claim was not requested and should be absent")
	}
	if diff := cmp.Diff(fields, tr.Fields()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestScanTrigger_Claim(t *testing.T) {
	claim := uuid.New()
	row := fakeRow{values: []any{1, 1, claim}}

	tr, err := scanTrigger(row, []domain.Field{domain.FieldClaim})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.IsLocked() || *tr.Claim() != claim {
		t.Errorf("expected claim %s, got %v", claim, tr.Claim())
	}
}

func TestPartition(t *testing.T) {
	items := make([]int, 250)
	parts := partition(items, 100)

	var sizes []int
	for _, p := range parts {
		sizes = append(sizes, len(p))
	}
	if diff := cmp.Diff([]int{100, 100, 50}, sizes); diff != "" {
		t.Errorf("partition sizes mismatch (-want +got):\n%s", diff)
	}

	if len(partition([]int{}, 100)) != 0 {
		t.Error("empty input should produce no partitions")
	}
}

func TestCluster_ForTenant(t *testing.T) {
	store := &TriggerRepo{shard: "a"}
	cluster, err := NewCluster(
		&Shard{Name: "a", MinTenant: 1, MaxTenant: 100, Store: store},
		&Shard{Name: "legacy", MinTenant: 101, MaxTenant: 200, Legacy: true},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := cluster.ForTenant(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != store {
		t.Error("tenant 50 should resolve to shard a")
	}

	if _, err := cluster.ForTenant(150); !errors.Is(err, ErrUnsupportedStorage) {
		t.Errorf("expected ErrUnsupportedStorage, got %v", err)
	}
	if _, err := cluster.ForTenant(500); !errors.Is(err, ErrNoShard) {
		t.Errorf("expected ErrNoShard, got %v", err)
	}
}

func TestNewCluster_Overlap(t *testing.T) {
	tests := []struct {
		name    string
		shards  []*Shard
		wantErr bool
	}{
		{
			name: "disjoint",
			shards: []*Shard{
				{Name: "b", MinTenant: 101},
				{Name: "a", MinTenant: 1, MaxTenant: 100},
			},
		},
		{
			name: "overlapping",
			shards: []*Shard{
				{Name: "a", MinTenant: 1, MaxTenant: 100},
				{Name: "b", MinTenant: 100, MaxTenant: 200},
			},
			wantErr: true,
		},
		{
			name: "unbounded swallows next",
			shards: []*Shard{
				{Name: "a", MinTenant: 1},
				{Name: "b", MinTenant: 500, MaxTenant: 600},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCluster(tt.shards...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCluster() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "overlapping") {
				t.Errorf("unexpected error text: %v", err)
			}
		})
	}
}

func TestClaimKeeper_HoldRelease(t *testing.T) {
	k := NewClaimKeeper(nil, KeeperConfig{})
	claim := uuid.New()

	k.Hold(claim)
	if !k.Holds(claim) || k.Len() != 1 {
		t.Fatal("claim should be held")
	}
	if !k.Release(claim) {
		t.Error("first release should report held claim")
	}
	if k.Release(claim) {
		t.Error("second release should be a no-op")
	}
	if k.Len() != 0 {
		t.Errorf("expected empty keeper, got %d", k.Len())
	}
}
