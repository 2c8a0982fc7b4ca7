// Package pack loads law packs and policy bundles from external files, so
// governance content ships and updates without code deployments. Law packs
// are YAML; policy bundles are JSON validated against a schema. Both are
// content-addressed over their canonical JSON form.
package pack

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/cartorio-ai/cartorio/pkg/law"
	"github.com/cartorio-ai/cartorio/pkg/lawdsl"
	"github.com/cartorio-ai/cartorio/pkg/policy"
)

// Issue reports one entry a loader skipped. Loading is fail-soft per entry:
// one bad law or rule never blocks the rest of its pack.
type Issue struct {
	Pack    string
	EntryID string
	Err     error
}

func (i Issue) String() string {
	return fmt.Sprintf("%s/%s: %v", i.Pack, i.EntryID, i.Err)
}

// LawEntry is one law record as written in a pack file.
type LawEntry struct {
	ID       string `yaml:"id" json:"id"`
	Scope    string `yaml:"scope" json:"scope"`
	TargetID string `yaml:"target_id,omitempty" json:"target_id,omitempty"`
	Name     string `yaml:"name" json:"name"`
	Version  string `yaml:"version" json:"version"`
	Active   bool   `yaml:"active" json:"active"`
	Content  string `yaml:"content" json:"content"`
}

// LawPack is a versioned collection of laws.
type LawPack struct {
	Name    string     `yaml:"name" json:"name"`
	Version string     `yaml:"version" json:"version"`
	Laws    []LawEntry `yaml:"laws" json:"laws"`

	// Hash is the content address of the pack, computed on load.
	Hash string `yaml:"-" json:"-"`
}

// LoadLawPack reads one YAML law pack. Entries with an invalid version,
// unknown scope, or unparseable body are skipped and reported; the returned
// laws are ready for a registry.
func LoadLawPack(path string) (*LawPack, []law.Law, []Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pack: read %s: %w", path, err)
	}

	var p LawPack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, nil, nil, fmt.Errorf("pack: parse %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = filepath.Base(path)
	}
	if _, err := semver.NewVersion(p.Version); err != nil {
		return nil, nil, nil, fmt.Errorf("pack: %s: pack version %q: %w", p.Name, p.Version, err)
	}
	p.Hash, err = contentHash(&p)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		laws   []law.Law
		issues []Issue
	)
	for _, entry := range p.Laws {
		if err := vetLawEntry(entry); err != nil {
			issues = append(issues, Issue{Pack: p.Name, EntryID: entry.ID, Err: err})
			continue
		}
		laws = append(laws, law.Law{
			ID:       entry.ID,
			Scope:    law.Scope(entry.Scope),
			TargetID: entry.TargetID,
			Name:     entry.Name,
			Version:  entry.Version,
			Active:   entry.Active,
			Content:  entry.Content,
		})
	}
	return &p, laws, issues, nil
}

func vetLawEntry(entry LawEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("missing id")
	}
	if !law.Scope(entry.Scope).Valid() {
		return fmt.Errorf("unknown scope %q", entry.Scope)
	}
	if _, err := semver.NewVersion(entry.Version); err != nil {
		return fmt.Errorf("version %q: %w", entry.Version, err)
	}
	if _, err := lawdsl.Parse(entry.Content); err != nil {
		return err
	}
	return nil
}

// LoadLawDir loads every .yaml/.yml pack in dir, newest declaration last.
func LoadLawDir(dir string) ([]law.Law, []Issue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("pack: read dir %s: %w", dir, err)
	}

	var (
		laws   []law.Law
		issues []Issue
	)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		_, packLaws, packIssues, err := LoadLawPack(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, nil, err
		}
		laws = append(laws, packLaws...)
		issues = append(issues, packIssues...)
	}
	return laws, issues, nil
}

// policyBundleSchema vets the structural shape of a bundle before any rule
// is compiled.
const policyBundleSchema = `{
	"type": "object",
	"required": ["name", "version", "policies"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"version": {"type": "string", "minLength": 1},
		"policies": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "scope", "rule_expr", "effect"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"scope": {"enum": ["global", "tenant", "app", "tool", "workflow", "agent"]},
					"scope_id": {"type": "string"},
					"rule_expr": {"type": "string", "minLength": 1},
					"effect": {"enum": ["allow", "deny", "require_approval", "modify"]},
					"priority": {"type": "integer"},
					"enabled": {"type": "boolean"},
					"reason": {"type": "string"},
					"patch": {"type": "object"}
				}
			}
		}
	}
}`

var bundleSchema = jsonschema.MustCompileString("policy_bundle.schema.json", policyBundleSchema)

// PolicyBundle is a versioned collection of structured policies.
type PolicyBundle struct {
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Policies []policy.Policy `json:"policies"`

	// Hash is the content address of the bundle, computed on load.
	Hash string `json:"-"`
}

// LoadPolicyBundle reads one JSON policy bundle, validates it against the
// bundle schema, and vets each rule expression with compile. Rules that fail
// to compile are skipped and reported.
func LoadPolicyBundle(path string, compile func(expr string) error) (*PolicyBundle, []Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("pack: read %s: %w", path, err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("pack: parse %s: %w", path, err)
	}
	if err := bundleSchema.Validate(doc); err != nil {
		return nil, nil, fmt.Errorf("pack: validate %s: %w", path, err)
	}

	var b PolicyBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, nil, fmt.Errorf("pack: parse %s: %w", path, err)
	}
	if _, err := semver.NewVersion(b.Version); err != nil {
		return nil, nil, fmt.Errorf("pack: %s: bundle version %q: %w", b.Name, b.Version, err)
	}
	b.Hash, err = contentHash(&b)
	if err != nil {
		return nil, nil, err
	}

	var (
		kept   []policy.Policy
		issues []Issue
	)
	for _, p := range b.Policies {
		if compile != nil {
			if err := compile(p.RuleExpr); err != nil {
				issues = append(issues, Issue{Pack: b.Name, EntryID: p.ID, Err: err})
				continue
			}
		}
		kept = append(kept, p)
	}
	b.Policies = kept
	return &b, issues, nil
}

// LoadPolicyDir loads every .json bundle in dir.
func LoadPolicyDir(dir string, compile func(expr string) error) ([]policy.Policy, []Issue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("pack: read dir %s: %w", dir, err)
	}

	var (
		policies []policy.Policy
		issues   []Issue
	)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		b, bundleIssues, err := LoadPolicyBundle(filepath.Join(dir, entry.Name()), compile)
		if err != nil {
			return nil, nil, err
		}
		policies = append(policies, b.Policies...)
		issues = append(issues, bundleIssues...)
	}
	return policies, issues, nil
}

// contentHash computes the sha256 of the document's canonical JSON form.
func contentHash(doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("pack: marshal for hashing: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("pack: canonicalize for hashing: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
