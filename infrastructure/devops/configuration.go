package devops

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// DBEntry is one MySQL server holding tenant schemas.
type DBEntry struct {
	Name     string   `yaml:"name" json:"name"`
	Host     string   `yaml:"host" json:"host"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"-"`
	Schemas  []string `yaml:"schemas,omitempty" json:"schemas,omitempty"`
}

// GetDSN builds a go-sql-driver DSN. An empty schema connects without one, which
// is what core.New expects for the shared pool.
func (db DBEntry) GetDSN(schema string) string {
	host := db.Host
	if !strings.Contains(host, ":") {
		host = host + ":3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC", db.Username, db.Password, host, schema)
}

// ParameterName is the SSM parameter listing the servers of an environment.
func ParameterName(env string) string {
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("/attendance/%s/databases", env)
}

// ParseDatabases reads the YAML list stored in the parameter, keyed by lower-cased name.
func ParseDatabases(raw []byte) (map[string]DBEntry, error) {
	var entries []DBEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	result := make(map[string]DBEntry, len(entries))
	for _, entry := range entries {
		if entry.Name == "" || entry.Host == "" {
			return nil, fmt.Errorf("database entry %q is missing a name or host", entry.Name)
		}
		result[strings.ToLower(entry.Name)] = entry
	}
	return result, nil
}

var (
	mu     sync.Mutex
	loaded = map[string]map[string]DBEntry{}
)

// LoadDatabases fetches the server list of env from SSM once per process.
func LoadDatabases(ctx context.Context, env string) (map[string]DBEntry, error) {
	paramName := ParameterName(env)

	mu.Lock()
	defer mu.Unlock()
	if entries, ok := loaded[paramName]; ok {
		return entries, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	out, err := ssm.NewFromConfig(cfg).GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get parameter %s: %w", paramName, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s is empty", paramName)
	}

	entries, err := ParseDatabases([]byte(*out.Parameter.Value))
	if err != nil {
		return nil, err
	}
	loaded[paramName] = entries
	return entries, nil
}
