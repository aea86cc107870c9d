package commands

import (
	"github.com/spf13/cobra"
	scraper "github.com/tourlens/scraper"
)

// filterFlags are shared by every command that runs a search.
type filterFlags struct {
	kind        string
	language    string
	region      string
	subRegion   string
	tourismType string
	category1   string
	category2   string
	category3   string
	keyword     string
	geoX        string
	geoY        string
	radius      int
	dateStart   string
	dateEnd     string
}

func addFilterFlags(cmd *cobra.Command, f *filterFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.kind, "kind", "area", "Search kind: area, location, keyword or date.")
	flags.StringVar(&f.language, "language", "", "Service language, as menu label or code.")
	flags.StringVar(&f.region, "region", "", "Region (시/도).")
	flags.StringVar(&f.subRegion, "sub-region", "", "Sub-region (시/군/구).")
	flags.StringVar(&f.tourismType, "type", "", "Tourism type.")
	flags.StringVar(&f.category1, "cat1", "", "Service category, level 1.")
	flags.StringVar(&f.category2, "cat2", "", "Service category, level 2.")
	flags.StringVar(&f.category3, "cat3", "", "Service category, level 3.")
	flags.StringVar(&f.keyword, "keyword", "", "Keyword for keyword searches.")
	flags.StringVar(&f.geoX, "geo-x", "", "Longitude for location searches.")
	flags.StringVar(&f.geoY, "geo-y", "", "Latitude for location searches.")
	flags.IntVar(&f.radius, "radius", scraper.DefaultRadius, "Radius in meters for location searches.")
	flags.StringVar(&f.dateStart, "start", "", "Event start date, YYYY-MM-DD.")
	flags.StringVar(&f.dateEnd, "end", "", "Event end date, YYYY-MM-DD.")
}

func (f *filterFlags) filter() (scraper.SearchFilter, error) {
	kind, err := scraper.ParseSearchKind(f.kind)
	if err != nil {
		return scraper.SearchFilter{}, err
	}
	return scraper.SearchFilter{
		Kind:        kind,
		Language:    f.language,
		Region:      f.region,
		SubRegion:   f.subRegion,
		TourismType: f.tourismType,
		Category1:   f.category1,
		Category2:   f.category2,
		Category3:   f.category3,
		Keyword:     f.keyword,
		GeoX:        f.geoX,
		GeoY:        f.geoY,
		Radius:      f.radius,
		DateStart:   f.dateStart,
		DateEnd:     f.dateEnd,
	}, nil
}
