// Package s3store is an S3-backed persistence.Store, grounded on the
// teacher's cmd/run.go result-upload path: aws-sdk-go's session.Session,
// s3manager.Uploader, and the s3 service client, redirected from
// uploading scan result archives to persisting individual checkpoint
// and workflow metadata objects.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/scanio-git/orchestrator/internal/persistence"
)

// Store persists checkpoints and workflow metadata as JSON objects
// under bucket/prefix, keyed the same way filestore keys its files:
// one "directory" (S3 key prefix) per workflow_id.
type Store struct {
	bucket   string
	prefix   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// New builds a Store against bucket using the default AWS credential
// chain and region resolution, mirroring cmd/run.go's
// session.Must(session.NewSession(...)) pattern.
func New(bucket, prefix, region string) (*Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("s3store: creating AWS session: %w", err)
	}
	return &Store{
		bucket:   bucket,
		prefix:   strings.TrimSuffix(prefix, "/"),
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (s *Store) checkpointKey(workflowID string, seq uint64) string {
	return fmt.Sprintf("%s/%s/checkpoint-%020d.json", s.prefix, workflowID, seq)
}

func (s *Store) metadataKey(workflowID string) string {
	return fmt.Sprintf("%s/%s/metadata.json", s.prefix, workflowID)
}

func (s *Store) workflowPrefix(workflowID string) string {
	return fmt.Sprintf("%s/%s/", s.prefix, workflowID)
}

func (s *Store) putJSON(ctx context.Context, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}

func (s *Store) getJSON(ctx context.Context, key string, v interface{}) error {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return &persistence.ErrNotFound{Kind: "s3 object", ID: key}
		}
		return err
	}
	defer out.Body.Close()
	body, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

type checkpointObject struct {
	WorkflowID   string `json:"workflow_id"`
	Seq          uint64 `json:"seq"`
	CheckpointID string `json:"checkpoint_id"`
	NodeKind     string `json:"node_kind"`
	CreatedAt    string `json:"created_at"`
	State        string `json:"state"`
}

func (s *Store) PutCheckpoint(ctx context.Context, cp persistence.Checkpoint) error {
	obj := checkpointObject{
		WorkflowID:   cp.WorkflowID,
		Seq:          cp.Seq,
		CheckpointID: cp.CheckpointID,
		NodeKind:     cp.NodeKind,
		CreatedAt:    cp.CreatedAt.Format(rfc3339Milli),
		State:        string(cp.StateJSON),
	}
	return s.putJSON(ctx, s.checkpointKey(cp.WorkflowID, cp.Seq), obj)
}

func (s *Store) GetCheckpoint(ctx context.Context, workflowID string, seq uint64) (persistence.Checkpoint, error) {
	var obj checkpointObject
	if err := s.getJSON(ctx, s.checkpointKey(workflowID, seq), &obj); err != nil {
		return persistence.Checkpoint{}, err
	}
	return checkpointFromObject(obj), nil
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
	var out []persistence.Checkpoint
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.workflowPrefix(workflowID)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.Contains(key, "checkpoint-") {
				continue
			}
			var cpObj checkpointObject
			if err := s.getJSON(ctx, key, &cpObj); err != nil {
				continue
			}
			out = append(out, checkpointFromObject(cpObj))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func checkpointFromObject(obj checkpointObject) persistence.Checkpoint {
	createdAt, _ := parseTime(obj.CreatedAt)
	return persistence.Checkpoint{
		WorkflowID:   obj.WorkflowID,
		Seq:          obj.Seq,
		CheckpointID: obj.CheckpointID,
		NodeKind:     obj.NodeKind,
		CreatedAt:    createdAt,
		StateJSON:    []byte(obj.State),
	}
}

type metadataObject struct {
	WorkflowID string  `json:"workflow_id"`
	PlanName   string  `json:"plan_name"`
	Phase      string  `json:"phase"`
	Progress   float64 `json:"progress"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	LatestSeq  uint64  `json:"latest_seq"`
}

func (s *Store) PutWorkflowMetadata(ctx context.Context, md persistence.WorkflowMetadata) error {
	obj := metadataObject{
		WorkflowID: md.WorkflowID,
		PlanName:   md.PlanName,
		Phase:      md.Phase,
		Progress:   md.Progress,
		CreatedAt:  md.CreatedAt.Format(rfc3339Milli),
		UpdatedAt:  md.UpdatedAt.Format(rfc3339Milli),
		LatestSeq:  md.LatestSeq,
	}
	return s.putJSON(ctx, s.metadataKey(md.WorkflowID), obj)
}

func (s *Store) GetWorkflowMetadata(ctx context.Context, workflowID string) (persistence.WorkflowMetadata, error) {
	var obj metadataObject
	if err := s.getJSON(ctx, s.metadataKey(workflowID), &obj); err != nil {
		return persistence.WorkflowMetadata{}, err
	}
	return metadataFromObject(obj), nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]persistence.WorkflowMetadata, error) {
	seen := map[string]bool{}
	var workflowIDs []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix + "/"),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			id := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(cp.Prefix), s.prefix+"/"), "/")
			if id != "" && !seen[id] {
				seen[id] = true
				workflowIDs = append(workflowIDs, id)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(workflowIDs)

	out := make([]persistence.WorkflowMetadata, 0, len(workflowIDs))
	for _, id := range workflowIDs {
		md, err := s.GetWorkflowMetadata(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, md)
	}
	return out, nil
}

func metadataFromObject(obj metadataObject) persistence.WorkflowMetadata {
	createdAt, _ := parseTime(obj.CreatedAt)
	updatedAt, _ := parseTime(obj.UpdatedAt)
	return persistence.WorkflowMetadata{
		WorkflowID: obj.WorkflowID,
		PlanName:   obj.PlanName,
		Phase:      obj.Phase,
		Progress:   obj.Progress,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		LatestSeq:  obj.LatestSeq,
	}
}

func (s *Store) DeleteWorkflow(ctx context.Context, workflowID string) error {
	var keys []*s3.ObjectIdentifier
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.workflowPrefix(workflowID)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	_, err = s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3.Delete{Objects: keys},
	})
	return err
}
