package webpages

import (
	"strings"

	"linker_index/internal/models"
)

type titleSeparator struct {
	sep     string
	padding string
}

var titleSeparators = []titleSeparator{
	{"-", " "},
	{"|", " "},
	{"—", " "},
	{"–", " "},
	{"»", " "},
	{"•", " "},
	{":", ""},
	{"⋆", " "},
}

// CleanTitle strips the site's branding from title. Sites with initial
// branding lead with "<brand> - ", others end with " - <brand>". Stripping
// repeats until nothing matches; an empty result becomes the site name.
func CleanTitle(title string, site *models.Website) string {
	if site == nil {
		return title
	}
	title = strings.ReplaceAll(title, "&amp;", "&")
	brands := append([]string{site.Name}, site.TitleBranding...)

	for changed := true; changed; {
		changed = false
		for _, s := range titleSeparators {
			for _, brand := range brands {
				if site.InitialTitleBranding {
					prefix := brand + s.padding + s.sep + " "
					if strings.HasPrefix(title, prefix) {
						title = title[len(prefix):]
						changed = true
					}
				} else {
					suffix := " " + s.sep + s.padding + brand
					if strings.HasSuffix(title, suffix) {
						title = title[:len(title)-len(suffix)]
						changed = true
					}
				}
			}
		}
	}

	if title == "" {
		return site.Name
	}
	return title
}

var descriptionEntities = strings.NewReplacer("&amp;", "&", "&nbsp;", " ")

// CleanDescription returns nil for descriptions that leaked markup or filler.
func CleanDescription(description string) *string {
	for _, bad := range []string{"*/", "*******"} {
		if strings.Contains(description, bad) {
			return nil
		}
	}
	d := descriptionEntities.Replace(description)
	return &d
}
