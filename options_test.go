package scraper

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tourlens/scraper/cache"
)

const regionModalHTML = `<div class="modal region-modal on">
	<ul><li><a name="areaCd">서울</a></li><li><a name="areaCd">부산</a></li></ul>
	<ul>
		<li><a name="signguCd">전체</a></li>
		<li><a name="signguCd">강남구</a></li>
		<li><a name="signguCd">
			종로구
		</a></li>
	</ul>
	<a href="#">확인</a>
</div>`

const categoryModalHTML = `<div class="modal on" id="popup1">
	<a name="cat1">자연</a><a name="cat1">인문(문화/예술/역사)</a>
	<a name="cat2">자연관광지</a><a name="cat2">관광자원</a>
	<a name="cat3">국립공원</a><a name="cat3">도립공원</a><a name="cat3">선택 안함</a>
</div>`

func newTestLister(site *fakeSite) OptionLister {
	return OptionLister{
		Launch: site.launcher(),
		Routes: testRoutes,
		Log:    testLog,
		Cache:  cache.NewMemoryService(),
	}
}

func TestSubRegions(t *testing.T) {
	ctx := context.Background()
	site := newFakeSite(nil)
	site.modals[regionModal] = regionModalHTML
	lister := newTestLister(site)

	got, err := lister.SubRegions(ctx, "서울")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"강남구", "종로구"}, got); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}

	// served from the cache
	site.modals[regionModal] = ""
	again, err := lister.SubRegions(ctx, "서울")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}
	if n := site.launchCount(); n != 1 {
		t.Errorf("%v launches", n)
	}

	none, err := lister.SubRegions(ctx, "전국")
	if err != nil || none != nil || site.launchCount() != 1 {
		t.Errorf("unset region gave %v, %v after %v launches", none, err, site.launchCount())
	}
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	site := newFakeSite(nil)
	site.modals[categoryModal] = categoryModalHTML
	lister := newTestLister(site)
	lister.Cache = nil

	top, err := lister.Categories(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"자연", "인문(문화/예술/역사)"}, top); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}

	third, err := lister.Categories(ctx, "관광지", "자연", "자연관광지")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"국립공원", "도립공원"}, third); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}
	if n := site.launchCount(); n != 2 {
		t.Errorf("%v launches without a cache", n)
	}

	if _, err := lister.Categories(ctx, "", "a", "b", "c"); err == nil {
		t.Error("a fourth level accepted")
	}
}

func TestOptionCacheKey(t *testing.T) {
	if got := optionCacheKey("cat", "관광지", "a b"); got != "tourlens:options:cat:%EA%B4%80%EA%B4%91%EC%A7%80:a+b" {
		t.Errorf("key %v", got)
	}
}
