package seoul

import (
	"strings"

	scraper "github.com/tourlens/scraper"
)

// ContentTypeCodes maps the tourism type names to their content type ids.
var ContentTypeCodes = map[string]string{
	"관광지":      "12",
	"문화시설":     "14",
	"행사/공연/축제": "15",
	"여행코스":     "25",
	"레포츠":      "28",
	"숙박":       "32",
	"쇼핑":       "38",
	"음식점":      "39",
}

// CategoryKeywords are matched against a row's tags.
var CategoryKeywords = map[string][]string{
	"관광지":      {"관광", "명소", "유적"},
	"문화시설":     {"문화", "미술관", "박물관", "전시", "갤러리", "도서관"},
	"행사/공연/축제": {"행사", "공연", "축제", "페스티벌"},
	"여행코스":     {"여행코스", "도보", "산책", "둘레길"},
	"레포츠":      {"레포츠", "스포츠", "공원", "체육"},
	"숙박":       {"숙박", "호텔", "모텔", "게스트하우스", "펜션"},
	"쇼핑":       {"쇼핑", "백화점", "시장", "면세점"},
	"음식점":      {"음식점", "맛집", "식당", "카페"},
}

// FilterByCategory keeps the records whose tags mention one of the
// category's keywords. An empty or "전체" category keeps everything.
func (f FieldMap) FilterByCategory(records []scraper.ListRecord, category string) []scraper.ListRecord {
	if category == "" || category == "전체" {
		return records
	}
	keywords := CategoryKeywords[category]
	var filtered []scraper.ListRecord
	for _, record := range records {
		tags := ""
		for _, field := range record.Raw {
			if field.Key == f.Tags {
				tags = field.Value
				break
			}
		}
		if tags == "" {
			continue
		}
		for _, keyword := range keywords {
			if strings.Contains(tags, keyword) {
				filtered = append(filtered, record)
				break
			}
		}
	}
	return filtered
}
