package extraction

import (
	"strings"
	"time"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
)

// titleSuffix is the document-type label stripped from fallback titles.
const titleSuffix = "基本設計書"

// Fallback builds the model-free record. It depends only on its inputs and now,
// and created_at is the only field that varies with now.
func Fallback(in Input, now time.Time) metadata.Metadata {
	infra := []string{}
	if in.DeployTarget != "" {
		infra = []string{in.DeployTarget}
	}
	return metadata.Metadata{
		Title:    fallbackTitle(in.Document),
		Summary:  metadata.Truncate(in.Idea, metadata.MaxSummaryLength),
		Keywords: append([]string{}, strings.Fields(in.SoftwareType)...),
		TechStack: metadata.TechStack{
			Frontend: []string{},
			Backend:  []string{},
			Infra:    infra,
			Language: []string{},
		},
		ArchitecturePatterns: []string{},
		DesignPatterns:       []string{},
		DB:                   []string{},
		CloudProvider:        in.DeployTarget,
		SoftwareType:         in.SoftwareType,
		DeployTarget:         in.DeployTarget,
		CreatedAt:            now.UTC().Format(time.RFC3339),
	}
}

// fallbackTitle is the first line without heading markers or the document-type label.
func fallbackTitle(doc string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(doc), "\n")
	line = strings.TrimSpace(strings.TrimLeft(line, "#"))
	line = strings.TrimSuffix(line, titleSuffix)
	return strings.TrimSpace(line)
}
