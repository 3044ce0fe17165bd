package pipeflow

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewDescriptorSet(t *testing.T) {
	set, err := NewDescriptorSet(shellJob("c"), shellJob("a"), shellJob("b"))
	if err != nil {
		t.Fatalf("NewDescriptorSet: %v", err)
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}
	if got := set.IDs(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("IDs() = %v, want ascending order", got)
	}
	if _, ok := set.Get("b"); !ok {
		t.Error("Get(b) not found")
	}
	if _, ok := set.Get("z"); ok {
		t.Error("Get(z) found a descriptor that was never added")
	}
}

func TestNewDescriptorSetRejectsDuplicates(t *testing.T) {
	_, err := NewDescriptorSet(shellJob("a"), shellJob("a"))
	if !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("error = %v, want ErrDuplicateJob", err)
	}
}

func TestNewDescriptorSetRejectsEmptyID(t *testing.T) {
	_, err := NewDescriptorSet(JobDescriptor{Command: CommandSpec{Kind: CommandShell, Script: "true"}})
	if !errors.Is(err, ErrEmptyJobID) {
		t.Fatalf("error = %v, want ErrEmptyJobID", err)
	}
}

func TestDescriptorWeightDefaultsToOne(t *testing.T) {
	if got := (JobDescriptor{}).weight(); got != 1 {
		t.Errorf("zero weight = %d, want 1", got)
	}
	if got := (JobDescriptor{Weight: 3}).weight(); got != 3 {
		t.Errorf("weight = %d, want 3", got)
	}
}
