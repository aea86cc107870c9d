package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// OptionCache is the subset of a memcache-style cache the option listers use.
type OptionCache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, expiration time.Duration) error
}

const DefaultOptionTTL = 24 * time.Hour

// OptionLister reads the choices the filter modals offer. Every lookup
// runs on its own session.
type OptionLister struct {
	Launch  Launcher
	Browser BrowserOptions
	Routes  Routes
	Log     zerolog.Logger
	Cache   OptionCache // optional
	TTL     time.Duration
}

// optionNames returns the texts of the anchors named group inside the modal markup.
func optionNames(html, group string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var names []string
	if err := Unmarshal(&names, doc.Find(fmt.Sprintf(`a[name="%v"]`, group)), UnmarshalOption{}); err != nil {
		return nil, err
	}
	var result []string
	for _, name := range names {
		if name != "" && !unset(name) {
			result = append(result, name)
		}
	}
	return result, nil
}

func optionCacheKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = url.QueryEscape(p)
	}
	return "tourlens:options:" + strings.Join(parts, ":")
}

func (lister OptionLister) ttl() time.Duration {
	if lister.TTL <= 0 {
		return DefaultOptionTTL
	}
	return lister.TTL
}

// cached serves key from the cache, or loads and stores it. Cache errors
// only cost a reload.
func (lister OptionLister) cached(ctx context.Context, key string, load func(ctx context.Context, s *Session) ([]string, error)) ([]string, error) {
	if lister.Cache != nil {
		if b, err := lister.Cache.Get(key); err == nil {
			var names []string
			if err := json.Unmarshal(b, &names); err == nil {
				lister.Log.Debug().Str("key", key).Msg("options from cache")
				return names, nil
			}
		}
	}

	launch := lister.Launch
	if launch == nil {
		launch = ChromeLauncher(lister.Log)
	}
	var names []string
	err := WithSession(ctx, launch, lister.Browser, lister.Log, func(s *Session) error {
		var err error
		names, err = load(ctx, s)
		return err
	})
	if err != nil {
		return nil, err
	}

	if lister.Cache != nil {
		if b, err := json.Marshal(names); err == nil {
			if err := lister.Cache.Set(key, b, lister.ttl()); err != nil {
				lister.Log.Warn().Err(err).Str("key", key).Msg("option cache write failed")
			}
		}
	}
	return names, nil
}

func (lister OptionLister) readModal(ctx context.Context, s *Session, modal, group string) ([]string, error) {
	if err := WaitVisible(fmt.Sprintf(`%v a[name="%v"]`, modal, group)).Do(ctx, s.Browser); err != nil {
		return nil, err
	}
	html, err := s.Browser.OuterHTML(ctx, modal)
	if err != nil {
		return nil, NavigationError{Step: "read " + modal, Err: err}
	}
	return optionNames(html, group)
}

// SubRegions lists the sub-regions of region.
func (lister OptionLister) SubRegions(ctx context.Context, region string) ([]string, error) {
	if unset(region) {
		return nil, nil
	}
	return lister.cached(ctx, optionCacheKey("signgu", region), func(ctx context.Context, s *Session) ([]string, error) {
		err := Run(ctx, s.Browser,
			Navigate(lister.Routes.Area),
			WaitVisible(searchFilterBox),
			ClickText("button", "지역 선택", false),
			WaitVisible(regionModal),
			WaitVisible(regionModal+` a[name="areaCd"]`),
			ClickText(regionModal+` a[name="areaCd"]`, region, true),
		)
		if err != nil {
			return nil, err
		}
		return lister.readModal(ctx, s, regionModal, "signguCd")
	})
}

// Categories lists the service categories one level below parents, so no
// parents gives level 1 and two parents give level 3.
func (lister OptionLister) Categories(ctx context.Context, tourismType string, parents ...string) ([]string, error) {
	if len(parents) > 2 {
		return nil, fmt.Errorf("categories have 3 levels, got %d parents", len(parents))
	}
	group := fmt.Sprintf("cat%d", len(parents)+1)
	key := optionCacheKey(append([]string{"cat", tourismType}, parents...)...)
	return lister.cached(ctx, key, func(ctx context.Context, s *Session) ([]string, error) {
		actions := []Action{
			Navigate(lister.Routes.Area),
			WaitVisible(searchFilterBox),
		}
		actions = append(actions, tourismTypeActions(SearchFilter{TourismType: tourismType})...)
		actions = append(actions,
			ClickText("button", "서비스 분류 선택", false),
			WaitVisible(categoryModal),
		)
		for i, parent := range parents {
			options := fmt.Sprintf(`%v a[name="cat%d"]`, categoryModal, i+1)
			actions = append(actions, WaitVisible(options), ClickText(options, parent, true))
		}
		if err := Run(ctx, s.Browser, actions...); err != nil {
			return nil, err
		}
		return lister.readModal(ctx, s, categoryModal, group)
	})
}
