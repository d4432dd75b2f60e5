// Package lawref holds the law reference catalog that analysis draws
// candidate violations from. The catalog ships with compiled-in defaults and
// can be replaced by a YAML file that is hot-reloaded on change.
package lawref

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/veritas-protocol/veritas-console/internal/incident"
)

// Law is one legal provision in the reference library.
type Law struct {
	ID           string                  `yaml:"id" json:"id"`
	Name         string                  `yaml:"name" json:"name"`
	Section      string                  `yaml:"section" json:"section"`
	Description  string                  `yaml:"description" json:"description"`
	Jurisdiction string                  `yaml:"jurisdiction" json:"jurisdiction"`
	Severity     incident.Severity       `yaml:"severity" json:"severity"`
	AppliesTo    []incident.IncidentType `yaml:"applies_to" json:"applies_to"`     // incident types this law is a candidate for
	ViolatesFor  []incident.IncidentType `yaml:"violates_for" json:"violates_for"` // incident types where the provision is considered violated
	Confidence   int                     `yaml:"confidence" json:"confidence"`     // base confidence 0-100
	Keywords     []string                `yaml:"keywords" json:"keywords"`         // free-text triggers in the draft narrative
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Laws []Law `yaml:"laws"`
}

// Catalog is a concurrency-safe view over the loaded laws.
type Catalog struct {
	mu     sync.RWMutex
	laws   []Law
	path   string
	logger *log.Logger
}

// NewCatalog returns a catalog seeded with the compiled-in defaults.
func NewCatalog(logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Catalog{laws: DefaultLaws(), logger: logger}
}

// LoadFile replaces the catalog contents from a YAML file.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read law catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse law catalog %s: %w", path, err)
	}
	if len(f.Laws) == 0 {
		return fmt.Errorf("law catalog %s contains no laws", path)
	}
	for i, law := range f.Laws {
		if law.ID == "" || law.Name == "" {
			return fmt.Errorf("law catalog %s: entry %d missing id or name", path, i)
		}
	}

	c.mu.Lock()
	c.laws = f.Laws
	c.path = path
	c.mu.Unlock()

	c.logger.Printf("law catalog loaded: %d laws from %s", len(f.Laws), path)
	return nil
}

// Laws returns a copy of the current catalog.
func (c *Catalog) Laws() []Law {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Law(nil), c.laws...)
}

// FindByID looks up a law by its catalog id.
func (c *Catalog) FindByID(id string) (Law, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, law := range c.laws {
		if law.ID == id {
			return law, true
		}
	}
	return Law{}, false
}

// Watch reloads the catalog whenever its file changes. It blocks until the
// stop channel closes and is intended to run in its own goroutine. A
// catalog that was never loaded from a file has nothing to watch.
func (c *Catalog) Watch(stop <-chan struct{}) error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("law catalog watch: no file loaded")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("law catalog watch: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("law catalog watch %s: %w", path, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.LoadFile(path); err != nil {
				c.logger.Printf("law catalog reload failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Printf("law catalog watcher error: %v", err)
		}
	}
}

// DefaultLaws is the compiled-in catalog covering the common cybercrime
// provisions the product launched with.
func DefaultLaws() []Law {
	return []Law{
		{
			ID:           "ipc-354d",
			Name:         "Stalking",
			Section:      "IPC §354D",
			Description:  "Monitoring or contacting a person repeatedly despite clear indication of disinterest, including through electronic communication.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityHigh,
			AppliesTo:    []incident.IncidentType{incident.TypeHarassment, incident.TypeStalking},
			ViolatesFor:  []incident.IncidentType{incident.TypeHarassment, incident.TypeStalking},
			Confidence:   86,
			Keywords:     []string{"follow", "stalk", "repeated", "messages"},
		},
		{
			ID:           "it-act-67",
			Name:         "Publishing Obscene Material in Electronic Form",
			Section:      "IT Act §67",
			Description:  "Publishing or transmitting obscene material in electronic form, including sharing intimate content without consent.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityCritical,
			AppliesTo:    []incident.IncidentType{incident.TypeHarassment, incident.TypeDefamation},
			ViolatesFor:  []incident.IncidentType{incident.TypeHarassment},
			Confidence:   78,
			Keywords:     []string{"photo", "image", "obscene", "intimate"},
		},
		{
			ID:           "it-act-66e",
			Name:         "Violation of Privacy",
			Section:      "IT Act §66E",
			Description:  "Capturing, publishing or transmitting the image of a private area of any person without consent.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityMedium,
			AppliesTo:    []incident.IncidentType{incident.TypeHarassment, incident.TypeStalking, incident.TypeIdentityTheft},
			Confidence:   54,
			Keywords:     []string{"private", "consent", "camera"},
		},
		{
			ID:           "it-act-66c",
			Name:         "Identity Theft",
			Section:      "IT Act §66C",
			Description:  "Fraudulent or dishonest use of the electronic signature, password or any other unique identification feature of another person.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityHigh,
			AppliesTo:    []incident.IncidentType{incident.TypeIdentityTheft, incident.TypePhishing, incident.TypeHacking},
			ViolatesFor:  []incident.IncidentType{incident.TypeIdentityTheft, incident.TypePhishing},
			Confidence:   88,
			Keywords:     []string{"password", "account", "impersonat", "login"},
		},
		{
			ID:           "it-act-66d",
			Name:         "Cheating by Personation Using Computer Resource",
			Section:      "IT Act §66D",
			Description:  "Cheating by personation by means of any communication device or computer resource.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityHigh,
			AppliesTo:    []incident.IncidentType{incident.TypeFraud, incident.TypePhishing, incident.TypeIdentityTheft},
			ViolatesFor:  []incident.IncidentType{incident.TypeFraud, incident.TypePhishing},
			Confidence:   82,
			Keywords:     []string{"fake", "impersonat", "pretend"},
		},
		{
			ID:           "ipc-420",
			Name:         "Cheating and Dishonestly Inducing Delivery of Property",
			Section:      "IPC §420",
			Description:  "Cheating a person and thereby dishonestly inducing delivery of property or valuable security.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityCritical,
			AppliesTo:    []incident.IncidentType{incident.TypeFraud},
			ViolatesFor:  []incident.IncidentType{incident.TypeFraud},
			Confidence:   75,
			Keywords:     []string{"money", "payment", "transfer", "scam"},
		},
		{
			ID:           "it-act-66",
			Name:         "Computer Related Offences",
			Section:      "IT Act §66",
			Description:  "Dishonestly or fraudulently accessing a computer resource, including data theft and denial of access.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityHigh,
			AppliesTo:    []incident.IncidentType{incident.TypeHacking},
			ViolatesFor:  []incident.IncidentType{incident.TypeHacking},
			Confidence:   80,
			Keywords:     []string{"hack", "access", "breach", "unauthorized"},
		},
		{
			ID:           "ipc-499",
			Name:         "Defamation",
			Section:      "IPC §499",
			Description:  "Harming the reputation of a person by words, signs or visible representations published electronically.",
			Jurisdiction: "IN",
			Severity:     incident.SeverityMedium,
			AppliesTo:    []incident.IncidentType{incident.TypeDefamation},
			ViolatesFor:  []incident.IncidentType{incident.TypeDefamation},
			Confidence:   70,
			Keywords:     []string{"reputation", "false", "rumor"},
		},
	}
}
