package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Client wraps client-go for one cluster: core clientset, metrics-server
// clientset, and the protections every outbound call goes through.
type Client struct {
	Clientset      kubernetes.Interface
	Metrics        metricsclient.Interface
	Config         *rest.Config
	Context        string
	kubeconfigPath string

	// Timeout for outbound K8s API calls; 0 means no timeout (request context only).
	Timeout time.Duration
	// limiter optionally rate-limits outbound API calls per cluster. Nil = no limit.
	limiter *rate.Limiter
	// circuitBreaker fails fast when the cluster API is down.
	circuitBreaker *CircuitBreaker

	healthMu        sync.RWMutex
	lastSuccessTime time.Time
	lastError       error
}

// NewClient creates a client for the given kubeconfig context. An empty
// kubeconfigPath tries in-cluster config first, then the default kubeconfig.
func NewClient(kubeconfigPath, kubeContext string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			homeDir, _ := os.UserHomeDir()
			if homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}

	if config == nil {
		config, err = buildConfigFromFlags(kubeContext, kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClientset, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics clientset: %w", err)
	}

	return &Client{
		Clientset:       clientset,
		Metrics:         metricsClientset,
		Config:          config,
		Context:         kubeContext,
		kubeconfigPath:  kubeconfigPath,
		circuitBreaker:  NewCircuitBreaker(kubeContext),
		lastSuccessTime: time.Now(),
	}, nil
}

func buildConfigFromFlags(kubeContext, kubeconfigPath string) (*rest.Config, error) {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
		&clientcmd.ConfigOverrides{
			CurrentContext: kubeContext,
		}).ClientConfig()
}

// NewClientForTest creates a Client around fake clientsets. Config is nil;
// callers must not use methods that need it.
func NewClientForTest(clusterID string, clientset kubernetes.Interface, metricsClientset metricsclient.Interface) *Client {
	return &Client{
		Clientset:       clientset,
		Metrics:         metricsClientset,
		Context:         clusterID,
		circuitBreaker:  NewCircuitBreaker(clusterID),
		lastSuccessTime: time.Now(),
	}
}

// SetTimeout sets the timeout for outbound K8s API calls.
func (c *Client) SetTimeout(d time.Duration) {
	c.Timeout = d
}

// SetLimiter sets a token-bucket rate limiter for outbound K8s API calls.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withTimeout returns ctx with the client timeout applied if set; otherwise
// returns ctx and a no-op cancel.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

// guarded runs fn through the rate limiter, circuit breaker, timeout, and
// retry stack, and records the outcome in the client's health status.
func (c *Client) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.waitRateLimit(ctx); err != nil {
		return err
	}

	err := c.circuitBreaker.Execute(ctx, func() error {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		return doWithRetry(ctx, defaultRetryAttempts, func() error {
			return fn(ctx)
		})
	})

	c.updateHealth(err)
	return err
}

// TestConnection verifies connectivity to the cluster.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.guarded(ctx, func(ctx context.Context) error {
		_, err := c.Clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1})
		return err
	})
}

func (c *Client) updateHealth(err error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if err == nil {
		c.lastSuccessTime = time.Now()
		c.lastError = nil
	} else {
		c.lastError = err
	}
}

// HealthStatus returns the connection health of this cluster: breaker state,
// consecutive failure count, last success time, and last error.
func (c *Client) HealthStatus() (state CircuitBreakerState, failures int, lastSuccess time.Time, lastErr error) {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.circuitBreaker.State(), c.circuitBreaker.FailureCount(), c.lastSuccessTime, c.lastError
}
