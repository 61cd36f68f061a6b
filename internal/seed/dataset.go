package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed communities.yml
var communitiesYAML []byte

// Religion pairs a religion name with its community names.
type Religion struct {
	Name        string   `yaml:"name"`
	Communities []string `yaml:"communities"`
}

// Dataset is the embedded reference data used to build realistic profiles.
type Dataset struct {
	Religions     []Religion `yaml:"religions"`
	Cities        []string   `yaml:"cities"`
	MotherTongues []string   `yaml:"mother_tongues"`
	ReportReasons []string   `yaml:"report_reasons"`
}

// LoadDataset parses the embedded communities file.
func LoadDataset() (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(communitiesYAML, &ds); err != nil {
		return nil, fmt.Errorf("parse embedded communities dataset: %w", err)
	}
	if len(ds.Religions) == 0 || len(ds.Cities) == 0 {
		return nil, fmt.Errorf("embedded communities dataset is incomplete")
	}
	return &ds, nil
}
