// Package k8scloud is a cloud reader that inventories Pods across the
// namespaces of a Kubernetes cluster, one I/O-pool task per namespace,
// grounded on clouds/azcloud.py's per-subscription processes/threads
// fan-out and the teacher's client-go usage.
package k8scloud

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/cloudwarden/cloudwarden/internal/iopool"
	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/k8scloud.K8sCloud", New)
}

// K8sCloud reads Pod inventory from a Kubernetes cluster. kubeconfig is a
// path to a kubeconfig file; an empty path first tries in-cluster config,
// then falls back to the default kubeconfig location resolution done by
// clientcmd. processes/threads size the I/O pool that fans out across
// namespaces, mirroring the teacher cloud plugins' own naming.
type K8sCloud struct {
	kubeconfig string
	processes  int
	threads    int
}

// New constructs a K8sCloud from its descriptor params: kubeconfig
// (string, default ""), processes (int, default 0 meaning CPU count),
// threads (int, default 0 meaning 5x CPU count).
func New(params map[string]interface{}) (interface{}, error) {
	k := &K8sCloud{}
	if v, ok := params["kubeconfig"].(string); ok {
		k.kubeconfig = v
	}
	k.processes = intParam(params, "processes")
	k.threads = intParam(params, "threads")
	return k, nil
}

func intParam(params map[string]interface{}, key string) int {
	if v, ok := params[key].(int); ok {
		return v
	}
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return 0
}

func (k *K8sCloud) buildConfig() (*rest.Config, error) {
	if k.kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", k.kubeconfig)
	}
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
}

// Read implements plugin.CloudReader.
func (k *K8sCloud) Read(ctx context.Context) (plugin.RecordCursor, error) {
	cfg, err := k.buildConfig()
	if err != nil {
		return nil, fmt.Errorf("k8scloud: load config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8scloud: build clientset: %w", err)
	}

	namespaces, err := clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8scloud: list namespaces: %w", err)
	}

	produce := func(ctx context.Context, emit func(iopool.Task)) {
		for _, ns := range namespaces.Items {
			emit(iopool.Task{ns.Name})
		}
	}
	consume := func(ctx context.Context, task iopool.Task, emit func(record.Record)) {
		ns, _ := task[0].(string)
		pods, err := clientset.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return
		}
		for _, pod := range pods.Items {
			emit(toRecord(ns, pod))
		}
	}

	results := iopool.Run(ctx, produce, consume, k.processes, k.threads, "k8scloud")
	return plugin.NewChannelCursor(results), nil
}

// Done implements plugin.CloudReader.
func (k *K8sCloud) Done() {}

func toRecord(namespace string, pod corev1.Pod) record.Record {
	rec := record.New()
	rec.Raw["uid"] = string(pod.UID)
	rec.Raw["namespace"] = namespace

	images := make([]string, 0, len(pod.Spec.Containers))
	privileged := false
	hostNetwork := pod.Spec.HostNetwork
	for _, c := range pod.Spec.Containers {
		images = append(images, c.Image)
		if c.SecurityContext != nil && c.SecurityContext.Privileged != nil && *c.SecurityContext.Privileged {
			privileged = true
		}
	}

	rec.Ext["record_type"] = "k8s_pod"
	rec.Ext["cloud_type"] = "kubernetes"
	rec.Ext["reference"] = namespace + "/" + pod.Name
	rec.Ext["namespace"] = namespace
	rec.Ext["name"] = pod.Name
	rec.Ext["phase"] = string(pod.Status.Phase)
	rec.Ext["images"] = images
	rec.Ext["host_network"] = hostNetwork
	rec.Ext["privileged"] = privileged
	rec.Ext["service_account"] = pod.Spec.ServiceAccountName
	return rec
}
