package producers

import (
	"context"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"
)

// KubeConfig locates the producer Deployment.
type KubeConfig struct {
	// Kubeconfig is a path to a kubeconfig file; empty means in-cluster.
	Kubeconfig string
	Namespace  string `validate:"required"`
	Deployment string `validate:"required"`
}

// Kube scales the producer Deployment and counts its available replicas.
type Kube struct {
	Client     kubernetes.Interface
	Namespace  string
	Deployment string
}

func NewKube(client kubernetes.Interface, namespace, deployment string) *Kube {
	return &Kube{Client: client, Namespace: namespace, Deployment: deployment}
}

func NewKubeFromConfig(cfg KubeConfig) (*Kube, error) {
	restConfig, err := clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	if err != nil {
		return nil, errors.Wrap(err, "loading kubernetes client config")
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating kubernetes client")
	}
	return NewKube(client, cfg.Namespace, cfg.Deployment), nil
}

func (k *Kube) ScaleProducers(ctx context.Context, count int) error {
	if count < 0 {
		return errors.Errorf("cannot scale %s/%s to %d replicas", k.Namespace, k.Deployment, count)
	}
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		deployments := k.Client.AppsV1().Deployments(k.Namespace)
		d, err := deployments.Get(ctx, k.Deployment, metav1.GetOptions{})
		if err != nil {
			return err
		}
		replicas := int32(count)
		d.Spec.Replicas = &replicas
		_, err = deployments.Update(ctx, d, metav1.UpdateOptions{})
		return err
	})
	return errors.Wrapf(err, "scaling %s/%s to %d", k.Namespace, k.Deployment, count)
}

func (k *Kube) ProducerCount(ctx context.Context) (int, error) {
	d, err := k.Client.AppsV1().Deployments(k.Namespace).Get(ctx, k.Deployment, metav1.GetOptions{})
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s/%s", k.Namespace, k.Deployment)
	}
	return int(d.Status.AvailableReplicas), nil
}
