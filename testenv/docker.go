// Package testenv starts throwaway MySQL and Redis containers for integration tests.
package testenv

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/models"
)

// Enabled reports whether INTEGRATION_TESTS is set.
func Enabled() bool {
	return strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) != ""
}

// SkipUnlessEnabled skips t when integration tests are off.
func SkipUnlessEnabled(t *testing.T) {
	t.Helper()
	if !Enabled() {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
}

// Setup starts MySQL (and Redis when withRedis), points config at them and migrates the schema.
// Containers are removed when the test finishes.
func Setup(t *testing.T, withRedis bool) {
	t.Helper()
	SkipUnlessEnabled(t)

	if withRedis {
		redisName, redisPort := startRedisContainer(t)
		t.Cleanup(func() { _ = dockerRmForce(redisName) })
		t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME_2", "ledger_test")

	config.ConnectDatabaseWithRetry()
	if withRedis {
		config.ConnectRedisWithRetry()
	}
	models.MigrateTable()
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun("run", "-d", "--name", name, "-p", "127.0.0.1:0:6379", "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	if !waitFor(60*time.Second, 250*time.Millisecond, func() bool {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		return err == nil
	}) {
		t.Fatalf("redis did not become ready")
	}
	return name, port
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=ledger_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	if !waitFor(120*time.Second, 500*time.Millisecond, func() bool {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		return err == nil
	}) {
		t.Fatalf("mysql did not become ready")
	}
	return name, port
}

func waitFor(timeout, every time.Duration, ready func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ready() {
			return true
		}
		time.Sleep(every)
	}
	return false
}

var portRe = regexp.MustCompile(`:(\d+)`)

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// "127.0.0.1:49154\n"
	m := portRe.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
