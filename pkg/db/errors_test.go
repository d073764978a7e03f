package db

import (
	"errors"
	"testing"
)

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}

	pg := errors.New(`ERROR: duplicate key value violates unique constraint "ux_bundles_open_partition" (SQLSTATE 23505)`)
	if !IsUniqueViolation(pg, "") {
		t.Fatal("expected generic match on postgres message")
	}
	if !IsUniqueViolation(pg, "ux_bundles_open_partition") {
		t.Fatal("expected constraint name match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "ux_bundles_open_partition") {
		t.Fatal("unrelated error matched")
	}

	lite := errors.New("UNIQUE constraint failed: bundles.receiver_number, bundles.receiver_role")
	if !IsUniqueViolation(lite, "") {
		t.Fatal("expected sqlite message match")
	}
}
