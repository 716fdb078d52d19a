// Package filestore is a YAML-file-backed persistence.Store, grounded
// on the teacher's pkg/shared/config LoadYAML/ValidateConfigPath idiom
// (gopkg.in/yaml.v2 decode/encode of plain Go structs to disk) applied
// to checkpoint and workflow metadata records instead of application
// config.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	yaml "gopkg.in/yaml.v2"

	"github.com/scanio-git/orchestrator/internal/persistence"
)

// Store persists checkpoints and workflow metadata as one YAML file per
// record under root, one directory per workflow_id.
type Store struct {
	root string
	mu   sync.Mutex
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) workflowDir(workflowID string) string {
	return filepath.Join(s.root, workflowID)
}

func (s *Store) checkpointPath(workflowID string, seq uint64) string {
	return filepath.Join(s.workflowDir(workflowID), fmt.Sprintf("checkpoint-%020d.yaml", seq))
}

func (s *Store) metadataPath(workflowID string) string {
	return filepath.Join(s.workflowDir(workflowID), "metadata.yaml")
}

// checkpointRecord is the on-disk shape; persistence.Checkpoint's
// StateJSON is stored as a raw string to keep the YAML file legible.
type checkpointRecord struct {
	WorkflowID   string `yaml:"workflow_id"`
	Seq          uint64 `yaml:"seq"`
	CheckpointID string `yaml:"checkpoint_id"`
	NodeKind     string `yaml:"node_kind"`
	CreatedAt    string `yaml:"created_at"`
	State        string `yaml:"state"`
}

func writeYAML(path string, v interface{}) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		enc.Close()
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	// rename is atomic on the same filesystem, giving PutCheckpoint the
	// idempotent-write guarantee spec.md §6 requires.
	return os.Rename(tmp, path)
}

func readYAML(path string, v interface{}) error {
	if err := validatePath(path); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yaml.NewDecoder(f).Decode(v)
}

func validatePath(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("filestore: %s is a directory, not a file", path)
	}
	return nil
}

// PutCheckpoint writes cp to disk. Writing the same (WorkflowID, Seq)
// twice overwrites in place, matching the store's idempotent-write
// contract.
func (s *Store) PutCheckpoint(ctx context.Context, cp persistence.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.workflowDir(cp.WorkflowID), 0o755); err != nil {
		return err
	}
	rec := checkpointRecord{
		WorkflowID:   cp.WorkflowID,
		Seq:          cp.Seq,
		CheckpointID: cp.CheckpointID,
		NodeKind:     cp.NodeKind,
		CreatedAt:    cp.CreatedAt.Format(rfc3339Milli),
		State:        string(cp.StateJSON),
	}
	return writeYAML(s.checkpointPath(cp.WorkflowID, cp.Seq), rec)
}

func (s *Store) GetCheckpoint(ctx context.Context, workflowID string, seq uint64) (persistence.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec checkpointRecord
	if err := readYAML(s.checkpointPath(workflowID, seq), &rec); err != nil {
		if os.IsNotExist(err) {
			return persistence.Checkpoint{}, &persistence.ErrNotFound{Kind: "checkpoint", ID: fmt.Sprintf("%s@%d", workflowID, seq)}
		}
		return persistence.Checkpoint{}, err
	}
	return checkpointFromRecord(rec), nil
}

func (s *Store) LatestCheckpoint(ctx context.Context, workflowID string) (persistence.Checkpoint, error) {
	all, err := s.ListCheckpoints(ctx, workflowID)
	if err != nil {
		return persistence.Checkpoint{}, err
	}
	if len(all) == 0 {
		return persistence.Checkpoint{}, &persistence.ErrNotFound{Kind: "checkpoint", ID: workflowID + "@latest"}
	}
	return all[len(all)-1], nil
}

func (s *Store) ListCheckpoints(ctx context.Context, workflowID string) ([]persistence.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.workflowDir(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]persistence.Checkpoint, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == "metadata.yaml" {
			continue
		}
		var rec checkpointRecord
		if err := readYAML(filepath.Join(s.workflowDir(workflowID), e.Name()), &rec); err != nil {
			continue
		}
		out = append(out, checkpointFromRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func checkpointFromRecord(rec checkpointRecord) persistence.Checkpoint {
	createdAt, _ := parseTime(rec.CreatedAt)
	return persistence.Checkpoint{
		WorkflowID:   rec.WorkflowID,
		Seq:          rec.Seq,
		CheckpointID: rec.CheckpointID,
		NodeKind:     rec.NodeKind,
		CreatedAt:    createdAt,
		StateJSON:    []byte(rec.State),
	}
}

type metadataRecord struct {
	WorkflowID string  `yaml:"workflow_id"`
	PlanName   string  `yaml:"plan_name"`
	Phase      string  `yaml:"phase"`
	Progress   float64 `yaml:"progress"`
	CreatedAt  string  `yaml:"created_at"`
	UpdatedAt  string  `yaml:"updated_at"`
	LatestSeq  uint64  `yaml:"latest_seq"`
}

func (s *Store) PutWorkflowMetadata(ctx context.Context, md persistence.WorkflowMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.workflowDir(md.WorkflowID), 0o755); err != nil {
		return err
	}
	rec := metadataRecord{
		WorkflowID: md.WorkflowID,
		PlanName:   md.PlanName,
		Phase:      md.Phase,
		Progress:   md.Progress,
		CreatedAt:  md.CreatedAt.Format(rfc3339Milli),
		UpdatedAt:  md.UpdatedAt.Format(rfc3339Milli),
		LatestSeq:  md.LatestSeq,
	}
	return writeYAML(s.metadataPath(md.WorkflowID), rec)
}

func (s *Store) GetWorkflowMetadata(ctx context.Context, workflowID string) (persistence.WorkflowMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec metadataRecord
	if err := readYAML(s.metadataPath(workflowID), &rec); err != nil {
		if os.IsNotExist(err) {
			return persistence.WorkflowMetadata{}, &persistence.ErrNotFound{Kind: "workflow", ID: workflowID}
		}
		return persistence.WorkflowMetadata{}, err
	}
	return metadataFromRecord(rec), nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]persistence.WorkflowMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]persistence.WorkflowMetadata, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var rec metadataRecord
		if err := readYAML(filepath.Join(s.root, e.Name(), "metadata.yaml"), &rec); err != nil {
			continue
		}
		out = append(out, metadataFromRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out, nil
}

func metadataFromRecord(rec metadataRecord) persistence.WorkflowMetadata {
	createdAt, _ := parseTime(rec.CreatedAt)
	updatedAt, _ := parseTime(rec.UpdatedAt)
	return persistence.WorkflowMetadata{
		WorkflowID: rec.WorkflowID,
		PlanName:   rec.PlanName,
		Phase:      rec.Phase,
		Progress:   rec.Progress,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		LatestSeq:  rec.LatestSeq,
	}
}

func (s *Store) DeleteWorkflow(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.RemoveAll(s.workflowDir(workflowID))
	return err
}
