package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type SearchKind int

const (
	SearchArea SearchKind = iota
	SearchLocation
	SearchKeyword
	SearchDate
)

func (kind SearchKind) String() string {
	switch kind {
	case SearchArea:
		return "area"
	case SearchLocation:
		return "location"
	case SearchKeyword:
		return "keyword"
	case SearchDate:
		return "date"
	}
	return fmt.Sprintf("SearchKind(%d)", int(kind))
}

func ParseSearchKind(s string) (SearchKind, error) {
	switch strings.ToLower(s) {
	case "", "area":
		return SearchArea, nil
	case "location", "geo":
		return SearchLocation, nil
	case "keyword", "total":
		return SearchKeyword, nil
	case "date", "festival":
		return SearchDate, nil
	}
	return SearchArea, fmt.Errorf("unknown search kind %q", s)
}

func (kind SearchKind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

func (kind *SearchKind) UnmarshalText(b []byte) error {
	k, err := ParseSearchKind(string(b))
	if err != nil {
		return err
	}
	*kind = k
	return nil
}

// Endpoint is the REST call the SPA issues for a search of this kind.
func (kind SearchKind) Endpoint() string {
	switch kind {
	case SearchLocation:
		return "/KorService2/locationBasedList2"
	case SearchKeyword:
		return "/KorService2/searchKeyword2"
	case SearchDate:
		return "/KorService2/searchFestival2"
	}
	return "/KorService2/areaBasedList2"
}

// LanguageCodes maps the language menu labels to their data-lang codes.
var LanguageCodes = map[string]string{
	"한국어":     "Kor",
	"영어":      "Eng",
	"일어":      "Jpn",
	"중국어(간체)": "Chs",
	"중국어(번체)": "Cht",
	"독일어":     "Ger",
	"프랑스어":    "Fre",
	"스페인어":    "Spa",
	"러시아어":    "Rus",
}

const DefaultRadius = 2000

// SearchFilter is a declarative search. Fields that the kind does not use are ignored.
type SearchFilter struct {
	Kind        SearchKind `json:"kind"`
	Language    string     `json:"language,omitempty"` // menu label or data-lang code
	Region      string     `json:"region,omitempty"`
	SubRegion   string     `json:"sub_region,omitempty"`
	TourismType string     `json:"tourism_type,omitempty"`
	Category1   string     `json:"category1,omitempty"`
	Category2   string     `json:"category2,omitempty"`
	Category3   string     `json:"category3,omitempty"`
	Keyword     string     `json:"keyword,omitempty"`
	GeoX        string     `json:"geo_x,omitempty"`
	GeoY        string     `json:"geo_y,omitempty"`
	Radius      int        `json:"radius,omitempty"`     // meters, DefaultRadius when zero
	DateStart   string     `json:"date_start,omitempty"` // YYYY-MM-DD
	DateEnd     string     `json:"date_end,omitempty"`   // YYYY-MM-DD
}

// unset reports whether v means "no selection".
func unset(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "전국", "전체", "선택 안함":
		return true
	}
	return false
}

func (filter SearchFilter) usesRegion() bool {
	return filter.Kind != SearchLocation
}

func (filter SearchFilter) usesTypeAndCategories() bool {
	return filter.Kind != SearchDate
}

// Routes are the SPA entry points per search kind.
type Routes struct {
	Area     string
	Location string
	Keyword  string
	Date     string
}

const DefaultBaseURL = "https://api.visitkorea.or.kr/"

func DefaultRoutes(baseURL string) Routes {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/") + "/#/"
	return Routes{
		Area:     baseURL + "useInforArea",
		Location: baseURL + "useInforLocation",
		Keyword:  baseURL + "useInforKeyword",
		Date:     baseURL + "useInforFestival",
	}
}

func (routes Routes) For(kind SearchKind) string {
	switch kind {
	case SearchLocation:
		return routes.Location
	case SearchKeyword:
		return routes.Keyword
	case SearchDate:
		return routes.Date
	}
	return routes.Area
}

const (
	languageButton   = "button.btn-lang"
	languageList     = "ul.lang-list"
	regionModal      = "div.modal.region-modal.on"
	tourismTypeModal = "div.modal#popup4.on"
	categoryModal    = "div.modal#popup1.on"
	overlay          = "div.overlay.on"
	searchFilterBox  = "div.search-filter"
	searchButton     = "div.search-filter button"
	locationTab      = `button#P2[name="/useInforLocation"]`
	keywordInput     = "input#title"
	startDateInput   = `div.search-filter input[title="시작날짜(날짜형식:YYYY-MM-DD)"]`
	endDateInput     = `div.search-filter input[title="종료날짜(날짜형식:YYYY-MM-DD)"]`
	geoXInput        = "input#searchXCoord"
	geoYInput        = "input#searchYCoord"
	radiusInput      = "input#searchRadius"
	galleryList      = "ul.gallery-list"
	galleryTitles    = "ul.gallery-list li div.gallery-tit"
)

func languageActions(language string) ([]Action, error) {
	if unset(language) || language == "한국어" || language == "Kor" {
		return nil, nil
	}
	code, ok := LanguageCodes[language]
	if !ok {
		for _, c := range LanguageCodes {
			if c == language {
				code, ok = c, true
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("unknown language %q", language)
	}
	option := fmt.Sprintf(`%v a[data-lang="%v"]`, languageList, code)
	return []Action{
		Click(languageButton),
		WaitVisible(option),
		Click(option),
		WaitVisible(searchFilterBox),
	}, nil
}

// modalActions opens a modal, picks options in order and confirms.
// Each pick waits for the next option group, since dependent options only
// render after their parent is chosen.
func modalActions(opener, modal string, picks [][2]string) []Action {
	actions := []Action{
		ClickText("button", opener, false),
		WaitVisible(modal),
	}
	for _, pick := range picks {
		options := fmt.Sprintf(`%v a[name="%v"]`, modal, pick[0])
		actions = append(actions,
			WaitVisible(options),
			ClickText(options, pick[1], true),
		)
	}
	return append(actions,
		ClickText(modal+" a", "확인", true),
		WaitHidden(overlay),
	)
}

func regionActions(filter SearchFilter) []Action {
	if !filter.usesRegion() || unset(filter.Region) {
		return nil
	}
	picks := [][2]string{{"areaCd", filter.Region}}
	if !unset(filter.SubRegion) {
		picks = append(picks, [2]string{"signguCd", filter.SubRegion})
	}
	return modalActions("지역 선택", regionModal, picks)
}

func tourismTypeActions(filter SearchFilter) []Action {
	if !filter.usesTypeAndCategories() || unset(filter.TourismType) {
		return nil
	}
	return []Action{
		ClickText("button", "관광타입 선택", false),
		WaitVisible(tourismTypeModal),
		ClickText(tourismTypeModal+" a", filter.TourismType, true),
		ClickText(tourismTypeModal+" a", "확인", true),
		WaitHidden(overlay),
	}
}

func categoryActions(filter SearchFilter) []Action {
	if !filter.usesTypeAndCategories() {
		return nil
	}
	var picks [][2]string
	for i, c := range []string{filter.Category1, filter.Category2, filter.Category3} {
		// a lower level without its parent cannot be selected
		if unset(c) {
			break
		}
		picks = append(picks, [2]string{"cat" + strconv.Itoa(i+1), c})
	}
	if len(picks) == 0 {
		return nil
	}
	return modalActions("서비스 분류 선택", categoryModal, picks)
}

func fieldActions(filter SearchFilter) []Action {
	var actions []Action
	switch filter.Kind {
	case SearchKeyword:
		if filter.Keyword != "" {
			actions = append(actions, WaitVisible(keywordInput), Fill(keywordInput, filter.Keyword))
		}
	case SearchDate:
		if filter.DateStart != "" {
			actions = append(actions, WaitVisible(startDateInput), Fill(startDateInput, filter.DateStart))
		}
		if filter.DateEnd != "" {
			actions = append(actions, WaitVisible(endDateInput), Fill(endDateInput, filter.DateEnd))
		}
	case SearchLocation:
		radius := filter.Radius
		if radius <= 0 {
			radius = DefaultRadius
		}
		actions = append(actions,
			Fill(geoXInput, filter.GeoX),
			Fill(geoYInput, filter.GeoY),
			Fill(radiusInput, strconv.Itoa(radius)),
		)
	}
	return actions
}

// locationEntry reaches the location search, either through its own route
// or through the tab button on the area page.
func locationEntry(routes Routes) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		if err := Navigate(routes.Location).Do(ctx, b); err != nil {
			return err
		}
		if err := WaitAttached(geoXInput).Do(ctx, b); err == nil {
			return nil
		}
		return Run(ctx, b,
			Navigate(routes.Area),
			WaitVisible(locationTab),
			Click(locationTab),
			WaitAttached(geoXInput),
		)
	})
}

// FilterActions returns the interactions that set filter, in the required
// order: language, region, tourism type, categories, then free fields.
func FilterActions(routes Routes, filter SearchFilter) ([]Action, error) {
	var actions []Action
	if filter.Kind == SearchLocation {
		actions = append(actions, locationEntry(routes))
	} else {
		actions = append(actions, Navigate(routes.For(filter.Kind)))
	}
	actions = append(actions, WaitVisible(searchFilterBox))

	lang, err := languageActions(filter.Language)
	if err != nil {
		return nil, err
	}
	actions = append(actions, lang...)
	actions = append(actions, regionActions(filter)...)
	actions = append(actions, tourismTypeActions(filter)...)
	actions = append(actions, categoryActions(filter)...)
	actions = append(actions, fieldActions(filter)...)
	return actions, nil
}

// Apply sets filter in the SPA. It does not start the search.
func Apply(ctx context.Context, s *Session, routes Routes, filter SearchFilter) error {
	actions, err := FilterActions(routes, filter)
	if err != nil {
		return NavigationError{Step: "filter", Err: err}
	}
	s.Log.Debug().Str("kind", filter.Kind.String()).Int("actions", len(actions)).Msg("applying filter")
	return Run(ctx, s.Browser, actions...)
}

// Search clicks the search button and waits until the buffer holds the
// first result page. The returned cursor carries the totals.
func Search(ctx context.Context, s *Session, filter SearchFilter, perPage int) (PageCursor, error) {
	if perPage <= 0 {
		perPage = ItemsPerPage
	}
	previous, err := s.Read(ctx)
	if err != nil {
		return PageCursor{}, NavigationError{Step: "read buffer", Err: err}
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.Options.responseTimeout())
	defer cancel()
	body, err := s.Browser.ExpectResponse(waitCtx, filter.Kind.Endpoint(), func(ctx context.Context) error {
		return ClickText(searchButton, "검색", true).Do(ctx, s.Browser)
	})
	if err != nil {
		return PageCursor{}, NavigationError{Step: "search " + filter.Kind.String(), Err: err}
	}

	// the response has arrived, so the SPA writes the buffer promptly. An
	// unchanged buffer is only current when it holds this very response.
	response := strings.TrimSpace(string(body))
	buffer, err := s.awaitBuffer(ctx, DefaultControlTimeout, "search result", func(value string) bool {
		return value != "" && (value != previous || strings.TrimSpace(value) == response)
	})
	if err != nil {
		request, _ := s.RequestURL(ctx)
		s.Log.Warn().Str("request_url", request).Err(err).Msg("search response not in buffer")
		return PageCursor{}, NavigationError{Step: "search result", Err: err}
	}
	_, total := ParseList(buffer)
	page := ParsePageNo(buffer)
	if page == 0 {
		page = 1
	}
	s.rememberList(buffer, page)

	cursor := PageCursor{
		CurrentPage: page,
		TotalCount:  total,
		TotalPages:  PagesFor(total, perPage),
	}
	s.Log.Info().Int("total_count", total).Int("total_pages", cursor.TotalPages).Msg("search done")
	return cursor, nil
}
