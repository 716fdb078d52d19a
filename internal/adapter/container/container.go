// Package container is a CONTAINER-category adapter that scans a
// CONTAINER_IMAGE target by running an image-scanning tool inside a
// Kubernetes Job, grounded on the teacher's cmd/run.go runInK8S (Job
// construction with client-go, poll-until-terminal wait loop) re-targeted
// from scanio's own image to an arbitrary scanner image and from a poll
// loop over os.Exit codes to the Adapter contract's context-cancelable
// Execute/Parse split.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/pointer"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
	"github.com/scanio-git/orchestrator/internal/cwe"
	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
	"github.com/scanio-git/orchestrator/internal/scan"
	"github.com/scanio-git/orchestrator/internal/severity"
)

// Adapter runs a container image scanner (e.g. trivy) as a Kubernetes Job
// and expects it to write a JSON findings array to its stdout log.
type Adapter struct {
	ScannerImage string
	Namespace    string
	Kubeconfig   string
	PollInterval time.Duration
}

// New returns an Adapter that runs scannerImage in the given namespace.
func New(scannerImage, namespace string) *Adapter {
	return &Adapter{ScannerImage: scannerImage, Namespace: namespace, PollInterval: 3 * time.Second}
}

func (a *Adapter) Describe() capability.Descriptor {
	return capability.Descriptor{
		ToolID:      "container-scan",
		ToolName:    "Container Image Scan",
		Category:    capability.CategoryContainer,
		Description: "Container image vulnerability scan run as a Kubernetes Job",
		SupportedLanguages: []string{
			"*",
		},
		DetectionTypes: []string{"manifest-lookup"},
		InputRequirements: capability.InputRequirements{
			RequiresBinary:      true,
			AcceptedTargetKinds: []capability.TargetKind{capability.TargetContainerImage},
		},
		OutputSchema: capability.OutputSchema{
			NativeFormat:   "json",
			ExpectedFields: []string{"[].VulnerabilityID"},
		},
		Execution: capability.Execution{
			DefaultTimeoutSeconds: 1200,
			MinMemoryMB:           512,
			RequiresNetwork:       true,
		},
	}
}

func (a *Adapter) Validate(req scan.Request) error {
	return req.ValidateAgainst(a.Describe())
}

func (a *Adapter) Execute(ctx context.Context, req scan.Request, ec adapter.ExecutionContext) (adapter.NativeOutput, error) {
	kubeconfig := a.Kubeconfig
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return adapter.NativeOutput{}, &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("loading kubeconfig: %v", err)}
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return adapter.NativeOutput{}, &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("building clientset: %v", err)}
	}

	namespace := a.Namespace
	if namespace == "" {
		namespace = corev1.NamespaceDefault
	}
	jobsClient := clientset.BatchV1().Jobs(namespace)

	jobName := fmt.Sprintf("scan-%s", req.ScanID)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: jobName},
		Spec: batchv1.JobSpec{
			Parallelism:             pointer.Int32(1),
			Completions:             pointer.Int32(1),
			BackoffLimit:            pointer.Int32(0),
			TTLSecondsAfterFinished: pointer.Int32(3600),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:    fmt.Sprintf("scanner-%s", req.ScanID),
						Image:   a.ScannerImage,
						Command: []string{"trivy", "image", "--format", "json", req.Target.Path},
					}},
					RestartPolicy: corev1.RestartPolicyNever,
				},
			},
		},
	}

	start := time.Now()
	if _, err := jobsClient.Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return adapter.NativeOutput{}, &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: fmt.Sprintf("creating job: %v", err)}
	}
	defer func() {
		background := metav1.DeletePropagationBackground
		_ = jobsClient.Delete(context.Background(), jobName, metav1.DeleteOptions{PropagationPolicy: &background})
	}()

	poll := a.PollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	for {
		current, err := jobsClient.Get(ctx, jobName, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return adapter.NativeOutput{}, &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: "job disappeared before completion"}
			}
			return adapter.NativeOutput{}, &orcherrors.ExecutionFailed{ExitCode: -1, StderrTail: err.Error()}
		}
		if current.Status.Succeeded > 0 {
			break
		}
		if current.Status.Failed > 0 {
			return adapter.NativeOutput{}, &orcherrors.ExecutionFailed{ExitCode: 1, StderrTail: "kubernetes job reported failure"}
		}
		select {
		case <-ctx.Done():
			return adapter.NativeOutput{}, &orcherrors.Timeout{AfterSeconds: time.Since(start).Seconds()}
		case <-time.After(poll):
		}
	}

	pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: fmt.Sprintf("job-name=%s", jobName)})
	if err != nil || len(pods.Items) == 0 {
		return adapter.NativeOutput{}, &orcherrors.ParseError{Detail: "no pod found for completed job"}
	}
	logs, err := clientset.CoreV1().Pods(namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{}).DoRaw(ctx)
	if err != nil {
		return adapter.NativeOutput{}, &orcherrors.ParseError{Detail: fmt.Sprintf("reading pod logs: %v", err)}
	}

	diag := adapter.Diagnostics{Duration: time.Since(start)}
	return adapter.NativeOutput{Payload: logs, Diagnostics: diag}, nil
}

// trivyEntry mirrors a single vulnerability record of trivy's --format json
// output, which is the widest-adopted schema for CONTAINER_IMAGE findings.
type trivyEntry struct {
	VulnerabilityID  string   `json:"VulnerabilityID"`
	PkgName          string   `json:"PkgName"`
	InstalledVersion string   `json:"InstalledVersion"`
	Severity         string   `json:"Severity"`
	Title            string   `json:"Title"`
	Description      string   `json:"Description"`
	CVSSScore        *float64 `json:"CVSSScore,omitempty"`
}

func (a *Adapter) Parse(out adapter.NativeOutput, req scan.Request) ([]finding.Finding, error) {
	var entries []trivyEntry
	if err := json.Unmarshal(out.Payload, &entries); err != nil {
		return nil, &orcherrors.ParseError{Detail: fmt.Sprintf("decoding container scan output: %v", err)}
	}

	var findings []finding.Finding
	for _, e := range entries {
		findings = append(findings, findingFromEntry(req, e, out))
	}
	return findings, nil
}

func findingFromEntry(req scan.Request, e trivyEntry, out adapter.NativeOutput) finding.Finding {
	normalized := severity.Normalize(e.Severity)
	cweID, _ := cwe.ExtractFirst(e.Description)

	f := finding.Finding{
		ScanSessionID: req.ScanID,
		VulnerabilityType: finding.VulnerabilityType{
			Name:  e.VulnerabilityID,
			CWEID: cweID,
		},
		Location: finding.Location{
			FilePath: fmt.Sprintf("%s@%s", e.PkgName, e.InstalledVersion),
		},
		Severity: finding.Severity{
			Level:     normalized.Level,
			CVSSScore: e.CVSSScore,
		},
		Confidence: finding.Confidence{
			Score: confidenceScore(normalized),
		},
		SourceTool: []finding.SourceTool{{
			ToolID:         "container-scan",
			RuleID:         e.VulnerabilityID,
			NativeSeverity: e.Severity,
			RawOutput:      string(out.Payload),
		}},
		Description: finding.Description{
			Summary: e.Title,
			Detail:  e.Description,
		},
		Metadata: finding.Metadata{
			DetectedAt: time.Now().UTC(),
		},
		VerificationStatus: finding.VerificationPending,
	}
	if !normalized.Recognized {
		f.Confidence.Reason = severity.UnmappedReason(e.Severity)
	}
	f.AssignID()
	return f
}

func confidenceScore(n severity.Normalized) int {
	if n.Recognized {
		return 70
	}
	return 40
}
