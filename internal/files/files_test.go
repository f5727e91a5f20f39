package files

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestUploadsSaveAndRead(t *testing.T) {
	u, err := NewUploads(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewUploads() error = %v", err)
	}

	ref, err := u.Save("sess_abc", KindCaseTemplate, "template.xml", strings.NewReader("<testcases/>"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ref.ID == "" || ref.Type != KindCaseTemplate || ref.Size != int64(len("<testcases/>")) {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	data, err := u.Read(ref)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "<testcases/>" {
		t.Fatalf("Read() = %q", data)
	}
}

func TestUploadsRejectsExtension(t *testing.T) {
	u, _ := NewUploads(t.TempDir(), 1<<20)
	if _, err := u.Save("sess_abc", KindCaseTemplate, "payload.exe", strings.NewReader("x")); err == nil {
		t.Fatal("Save() accepted .exe, want error")
	}
}

func TestUploadsEnforcesSizeLimit(t *testing.T) {
	u, _ := NewUploads(t.TempDir(), 8)
	_, err := u.Save("sess_abc", KindCaseTemplate, "big.xml", strings.NewReader("0123456789"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Save() error = %v, want ErrFileTooLarge", err)
	}
}

func TestUploadsSanitizesSessionDir(t *testing.T) {
	root := t.TempDir()
	u, _ := NewUploads(root, 1<<20)

	ref, err := u.Save("../escape", KindCaseTemplate, "t.xml", strings.NewReader("<x/>"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(ref.Path, root) {
		t.Fatalf("upload escaped root: %q", ref.Path)
	}
}

func TestUploadsRemoveSession(t *testing.T) {
	u, _ := NewUploads(t.TempDir(), 1<<20)
	ref, _ := u.Save("sess_abc", KindCaseTemplate, "t.xml", strings.NewReader("<x/>"))

	if err := u.RemoveSession("sess_abc"); err != nil {
		t.Fatalf("RemoveSession() error = %v", err)
	}
	if _, err := os.Stat(ref.Path); !os.IsNotExist(err) {
		t.Fatalf("upload still present after RemoveSession: %v", err)
	}
}

func TestMemoryArtifactsRoundTrip(t *testing.T) {
	store := NewMemoryArtifacts()
	ctx := context.Background()

	a := &Artifact{SessionID: "sess_abc", Name: "cases.xml", ContentType: "application/xml", Data: []byte("<testcases/>")}
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if a.ID == "" {
		t.Fatal("Save() did not assign an id")
	}

	got, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != "<testcases/>" || got.SessionID != "sess_abc" {
		t.Fatalf("unexpected artifact: %+v", got)
	}

	// Mutating the returned copy must not affect the stored artifact.
	got.Data[0] = 'X'
	again, _ := store.Get(ctx, a.ID)
	if string(again.Data) != "<testcases/>" {
		t.Fatalf("store leaked caller mutation: %q", again.Data)
	}
}

func TestMemoryArtifactsMissing(t *testing.T) {
	store := NewMemoryArtifacts()
	if _, err := store.Get(context.Background(), "gen_missing"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("Get() error = %v, want ErrArtifactNotFound", err)
	}
}

func TestMemoryArtifactsDeleteBySession(t *testing.T) {
	store := NewMemoryArtifacts()
	ctx := context.Background()

	a := &Artifact{SessionID: "sess_abc", Name: "cases.xml", Data: []byte("<x/>")}
	b := &Artifact{SessionID: "sess_other", Name: "cases.xml", Data: []byte("<y/>")}
	store.Save(ctx, a)
	store.Save(ctx, b)

	if err := store.DeleteBySession(ctx, "sess_abc"); err != nil {
		t.Fatalf("DeleteBySession() error = %v", err)
	}
	if _, err := store.Get(ctx, a.ID); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("artifact for deleted session still present: %v", err)
	}
	if _, err := store.Get(ctx, b.ID); err != nil {
		t.Fatalf("unrelated artifact removed: %v", err)
	}
}
