package operators

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

func init() {
	RegisterFunc("redis", opRedis)
	RegisterFunc("etcd", opEtcd)
	RegisterFunc("s3", opS3)
	RegisterFunc("grpc", opGRPC)
	RegisterFunc("kubernetes", opKubernetes)
	RegisterFunc("prometheus", opPrometheus)
}

// RedisClient abstracts the Redis commands the @redis operator needs, so
// the runtime does not take a hard client dependency.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// S3API is the S3 surface used by @s3. Satisfied by *s3.Client.
type S3API interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GRPCDialer opens a client connection for health checks. The default
// dials with insecure transport credentials; tests substitute their own.
type GRPCDialer func(target string) (grpc.ClientConnInterface, io.Closer, error)

// Infra bundles the optional infrastructure clients. Nil fields make their
// operator return ErrNotConfigured.
type Infra struct {
	Redis RedisClient
	Etcd  *clientv3.Client
	S3    S3API
	Kube  kubernetes.Interface
	Dial  GRPCDialer
}

// NewDefaultInfra builds the infrastructure clients reachable from the
// ambient environment: the AWS default credential chain for @s3 (only when
// a region is set, so startup never waits on instance metadata) and an etcd
// client when ETCD_ENDPOINTS is set. Clients that cannot be built stay nil
// and their operators report not-configured.
func NewDefaultInfra(ctx context.Context) *Infra {
	inf := &Infra{}
	if os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_DEFAULT_REGION") != "" {
		if cfg, err := awsconfig.LoadDefaultConfig(ctx); err == nil {
			inf.S3 = s3.NewFromConfig(cfg)
		}
	}
	if eps := os.Getenv("ETCD_ENDPOINTS"); eps != "" {
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(eps, ","),
			DialTimeout: 5 * time.Second,
		})
		if err == nil {
			inf.Etcd = cli
		}
	}
	return inf
}

// opRedis implements @redis(op, key, value?): get, set, del, keys.
func opRedis(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Infra == nil || env.Infra.Redis == nil {
		return nil, NotConfigured("redis")
	}
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @redis(op, key, value?)")
	}
	op := strings.ToLower(Unquote(params[0]))
	key := Unquote(params[1])
	r := env.Infra.Redis

	switch op {
	case "get":
		v, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "set":
		if len(params) < 3 {
			return nil, fmt.Errorf("@redis set needs a value")
		}
		value, err := env.EvalParamString(ctx, params[2])
		if err != nil {
			return nil, err
		}
		var ttl time.Duration
		if len(params) > 3 {
			ttl, err = parseTTL(params[3])
			if err != nil {
				return nil, err
			}
		}
		if err := r.Set(ctx, key, value, ttl); err != nil {
			return nil, err
		}
		return value, nil
	case "del":
		if err := r.Del(ctx, key); err != nil {
			return nil, err
		}
		return true, nil
	case "keys":
		keys, err := r.Keys(ctx, key)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown @redis op %q", op)
	}
}

// opEtcd implements @etcd(get|set, key, value?).
func opEtcd(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Infra == nil || env.Infra.Etcd == nil {
		return nil, NotConfigured("etcd")
	}
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @etcd(get|set, key, value?)")
	}
	op := strings.ToLower(Unquote(params[0]))
	key := Unquote(params[1])
	cli := env.Infra.Etcd

	switch op {
	case "get":
		resp, err := cli.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(resp.Kvs) == 0 {
			return nil, nil
		}
		return string(resp.Kvs[0].Value), nil
	case "set", "put":
		if len(params) < 3 {
			return nil, fmt.Errorf("@etcd set needs a value")
		}
		value, err := env.EvalParamString(ctx, params[2])
		if err != nil {
			return nil, err
		}
		if _, err := cli.Put(ctx, key, value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return nil, fmt.Errorf("unknown @etcd op %q", op)
	}
}

// opS3 implements @s3(bucket, key): fetches the object body as a string.
func opS3(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Infra == nil || env.Infra.S3 == nil {
		return nil, NotConfigured("s3")
	}
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @s3(bucket, key)")
	}
	bucket := Unquote(params[0])
	key := Unquote(params[1])

	out, err := env.Infra.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(io.LimitReader(out.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

type grpcConnCloser struct{ conn *grpc.ClientConn }

func (c grpcConnCloser) Close() error { return c.conn.Close() }

func defaultGRPCDialer(target string) (grpc.ClientConnInterface, io.Closer, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return conn, grpcConnCloser{conn}, nil
}

// opGRPC implements @grpc(health, target) using the standard gRPC health
// checking protocol.
func opGRPC(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 || strings.ToLower(Unquote(params[0])) != "health" {
		return nil, fmt.Errorf("expected @grpc(health, target)")
	}
	target := Unquote(params[1])

	dial := defaultGRPCDialer
	if env.Infra != nil && env.Infra.Dial != nil {
		dial = env.Infra.Dial
	}
	conn, closer, err := dial(target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	defer closer.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return nil, fmt.Errorf("health check %s: %w", target, err)
	}
	return resp.Status.String(), nil
}

// opKubernetes implements @kubernetes(pods|services, namespace?): lists the
// resource names in the namespace (default namespace when omitted).
func opKubernetes(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Infra == nil || env.Infra.Kube == nil {
		return nil, NotConfigured("kubernetes")
	}
	params := call.Params()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected @kubernetes(pods|services, namespace?)")
	}
	resource := strings.ToLower(Unquote(params[0]))
	namespace := "default"
	if len(params) > 1 {
		namespace = Unquote(params[1])
	}

	switch resource {
	case "pods":
		list, err := env.Infra.Kube.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
		}
		out := make([]any, len(list.Items))
		for i, p := range list.Items {
			out[i] = map[string]any{
				"name":  p.Name,
				"phase": string(p.Status.Phase),
			}
		}
		return out, nil
	case "services":
		list, err := env.Infra.Kube.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list services in %s: %w", namespace, err)
		}
		out := make([]any, len(list.Items))
		for i, s := range list.Items {
			out[i] = map[string]any{
				"name": s.Name,
				"type": string(s.Spec.Type),
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown @kubernetes resource %q", resource)
	}
}

// opPrometheus implements @prometheus(metric): reads the named value from
// the runtime's metric store (the same store @metrics writes through).
func opPrometheus(_ context.Context, call Call, env *Env) (any, error) {
	if env.Metrics == nil {
		return nil, NotConfigured("metrics store")
	}
	name := Unquote(strings.TrimSpace(call.RawArgs))
	if name == "" {
		return nil, fmt.Errorf("expected @prometheus(metric)")
	}
	v, ok := env.Metrics.Value(name)
	if !ok {
		return nil, fmt.Errorf("metric %q not recorded", name)
	}
	return v, nil
}
