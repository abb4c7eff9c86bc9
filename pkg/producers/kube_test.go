package producers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func producerDeployment(replicas, available int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "producer", Namespace: "producer-consumer"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status:     appsv1.DeploymentStatus{AvailableReplicas: available},
	}
}

func TestKube_ScaleProducersSetsReplicas(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset(producerDeployment(1, 1))
	k := NewKube(client, "producer-consumer", "producer")

	require.NoError(t, k.ScaleProducers(ctx, 4))

	d, err := client.AppsV1().Deployments("producer-consumer").Get(ctx, "producer", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(4), *d.Spec.Replicas)
}

func TestKube_ProducerCountIsAvailableReplicas(t *testing.T) {
	k := NewKube(fake.NewSimpleClientset(producerDeployment(5, 3)), "producer-consumer", "producer")

	n, err := k.ProducerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestKube_MissingDeployment(t *testing.T) {
	k := NewKube(fake.NewSimpleClientset(), "producer-consumer", "producer")

	_, err := k.ProducerCount(context.Background())
	assert.Error(t, err)
	assert.Error(t, k.ScaleProducers(context.Background(), 2))
}

func TestKube_RejectsNegativeCount(t *testing.T) {
	k := NewKube(fake.NewSimpleClientset(producerDeployment(1, 1)), "producer-consumer", "producer")
	assert.Error(t, k.ScaleProducers(context.Background(), -1))
}
