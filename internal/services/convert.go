package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/desertthunder/mpsync/internal/shared"
)

// article pairs a multi_item entry with the draft item it belongs to.
// Item-level values are the fallback for missing multi_item values.
type article struct {
	item  jsoniter.Any
	multi jsoniter.Any
}

// ConvertAppMsgInfoToParams turns a draft's app_msg_info into the form expected by
// the create/update draft endpoint. Each article of every item gets a numbered block
// of fields (title0, content0, ...), followed by the shared req payload.
func ConvertAppMsgInfoToParams(info []byte) (url.Values, error) {
	if !jsonCodec.Valid(info) {
		return nil, fmt.Errorf("%w: app_msg_info is not valid JSON", shared.ErrInvalidInput)
	}
	msg := jsoniter.Get(info)
	if msg.ValueType() == jsoniter.StringValue {
		msg = jsoniter.Get([]byte(msg.ToString()))
	}

	var articles []article
	items := msg.Get("item")
	for i := 0; i < items.Size(); i++ {
		item := items.Get(i)
		multi := item.Get("multi_item")
		if multi.ValueType() == jsoniter.ArrayValue && multi.Size() > 0 {
			for j := 0; j < multi.Size(); j++ {
				articles = append(articles, article{item: item, multi: multi.Get(j)})
			}
			continue
		}
		articles = append(articles, article{item: item, multi: jsoniter.Get([]byte("{}"))})
	}

	count := strconv.Itoa(len(articles))
	appID := msg.Get("app_id")
	p := url.Values{}
	p.Set("fingerprint", "")
	p.Set("random", randomString())
	p.Set("AppMsgId", or("", appID))
	p.Set("count", count)
	p.Set("data_seq", or("0", msg.Get("data_seq")))
	p.Set("operate_from", "Chrome")
	p.Set("isnew", boolFlag(truthy(appID)))
	p.Set("articlenum", count)
	p.Set("pre_timesend_set", "0")

	for idx, a := range articles {
		setArticle(p, strconv.Itoa(idx), a)
	}

	req, err := buildReq(msg, articles)
	if err != nil {
		return nil, err
	}
	p.Set("req", req)
	p.Set("remind_flag", "null")
	p.Set("is_auto_type_setting", or("3", msg.Get("is_auto_type_setting")))
	p.Set("save_type", "0")
	p.Set("isneedsave", "0")
	return p, nil
}

func setArticle(p url.Values, n string, a article) {
	it, mi := a.item, a.multi
	set := func(key, value string) { p.Set(key+n, value) }

	set("is_finder_video", "0")
	set("finder_draft_id", "0")
	set("applyori", or("0", it.Get("is_original")))
	set("ad_video_transition", "")
	set("can_reward", or("0", it.Get("can_reward")))
	set("pay_gifts_count", or("0", it.Get("pay_gifts_count")))
	set("reward_reply_id", "")
	if it.Get("related_video").ValueType() == jsoniter.ArrayValue {
		set("related_video", "")
	} else {
		set("related_video", or("", it.Get("related_video")))
	}
	set("is_video_recommend", or("-1", it.Get("is_video_recommend")))

	set("title", or("", mi.Get("title"), it.Get("title")))
	set("is_user_title", "")
	set("author", or("", mi.Get("author"), it.Get("author")))
	set("writerid", or("0", it.Get("writerid")))
	set("fileid", or("", mi.Get("file_id"), it.Get("file_id")))
	set("digest", or("", mi.Get("digest"), it.Get("digest")))
	set("auto_gen_digest", or("0", it.Get("auto_gen_digest")))
	set("content", or("", mi.Get("content"), it.Get("content")))
	set("sourceurl", or("", mi.Get("source_url"), it.Get("source_url")))

	set("last_choose_cover_from", or("0", it.Get("last_choose_cover_from")))
	for _, k := range []string{"cdn_url", "cdn_235_1_url", "cdn_16_9_url", "cdn_3_4_url", "cdn_1_1_url"} {
		set(k, or("", mi.Get(k), it.Get(k)))
	}
	set("cdn_finder_url", "")
	set("cdn_video_url", "")
	set("cdn_url_back", or("", mi.Get("cdn_url_back"), it.Get("cdn_url_back")))
	set("crop_list", jsonText("{}", mi.Get("crop_list"), it.Get("crop_list")))
	set("app_cover_auto", or("0", it.Get("app_cover_auto")))

	set("need_open_comment", boolFlag(truthy(it.Get("need_open_comment"))))
	set("only_fans_can_comment", boolFlag(truthy(it.Get("only_fans_can_comment"))))
	set("only_fans_days_can_comment", or("0", it.Get("only_fans_days_can_comment")))
	set("reply_flag", or("2", it.Get("reply_flag")))
	set("not_pay_can_comment", or("0", it.Get("not_pay_can_comment")))
	set("auto_elect_comment", definedOr("1", it.Get("auto_elect_comment")))
	set("auto_elect_reply", definedOr("1", it.Get("auto_elect_reply")))
	set("option_version", or("5", it.Get("option_version")))
	set("open_fansmsg", or("0", it.Get("open_fansmsg")))

	for _, k := range []string{"music_id", "voteid", "voteismlt", "supervoteid"} {
		set(k, "")
	}
	set("super_vote_id", or("0", it.Get("super_vote_id")))
	for _, k := range []string{"cardid", "cardquantity", "cardlimit", "vid_type"} {
		set(k, "")
	}

	set("show_cover_pic", multiOr(mi.Get("show_cover_pic"), it.Get("show_cover_pic"), "0"))
	set("shortvideofileid", "")

	copyrightType := multiOr(mi.Get("copyright_type"), it.Get("copyright_type"), "0")
	set("copyright_type", copyrightType)
	set("is_cartoon_copyright", or("0", it.Get("is_cartoon_copyright")))
	set("copyright_img_list", jsonText(`{"max_width":578,"img_list":[]}`, it.Get("copyright_img_list")))

	if copyrightType == "1" {
		set("platform", or("", mi.Get("platform"), it.Get("platform")))
		set("allow_fast_reprint", definedOr("1", it.Get("allow_fast_reprint")))
		set("allow_reprint", definedOr("0", it.Get("allow_reprint")))
		set("allow_reprint_modify", definedOr("0", it.Get("allow_reprint_modify")))
		set("original_article_type", or("", it.Get("original_article_type")))
		set("ori_white_list", jsonText(`{"white_list":[]}`, it.Get("ori_white_list"), mi.Get("ori_white_list")))
	} else {
		set("releasefirst", or("", mi.Get("releasefirst"), it.Get("releasefirst")))
		set("platform", or("", mi.Get("platform"), it.Get("platform")))
		set("reprint_permit_type", or("", mi.Get("reprint_permit_type"), it.Get("reprint_permit_type")))
		set("allow_fast_reprint", definedOr("0", it.Get("allow_fast_reprint")))
		set("allow_reprint", "")
		set("allow_reprint_modify", "")
		set("original_article_type", "")
		set("ori_white_list", "")
	}
	set("video_ori_status", "")
	set("hit_nickname", "")

	set("free_content", or("", it.Get("free_content")))
	set("fee", or("0", it.Get("fee")))
	set("ad_id", "")
	set("guide_words", "")
	set("is_share_copyright", or("0", it.Get("is_share_copyright")))
	set("share_copyright_url", or("", it.Get("share_copyright_url")))
	set("source_article_type", or("", it.Get("source_article_type")))
	set("reprint_recommend_title", "")
	set("reprint_recommend_content", "")

	set("share_page_type", or("0", it.Get("share_page_type")))
	set("share_imageinfo", jsonText(`{"list":[]}`, it.Get("share_imageinfo")))
	set("share_video_id", or("", it.Get("share_video_id")))
	set("dot", jsonText("{}", it.Get("dot")))
	for _, k := range []string{"share_voice_id", "share_finder_audio_username", "share_finder_audio_exportid", "mmlistenitem_json_buf"} {
		set(k, "")
	}

	set("insert_ad_mode", or("", it.Get("insert_ad_mode")))
	if cats := it.Get("categories_list"); cats.ValueType() == jsoniter.ArrayValue {
		set("categories_list", rawJSON(cats))
	} else {
		set("categories_list", or("[]", cats))
	}
	set("compose_info", jsonText(`{"list":[]}`, it.Get("compose_info")))

	set("is_pay_subscribe", or("0", it.Get("is_pay_subscribe")))
	for _, k := range []string{"pay_fee", "pay_preview_percent", "pay_desc", "pay_album_info"} {
		set(k, "")
	}
	set("appmsg_album_info", jsonText(`{"appmsg_album_infos":[]}`, it.Get("appmsg_album_info")))

	set("can_insert_ad", definedOr("1", it.Get("can_insert_ad")))
	set("open_keyword_ad", or("0", it.Get("open_keyword_ad")))
	set("open_comment_ad", or("0", it.Get("open_comment_ad")))

	set("audio_info", jsonText(`{"audio_infos":[]}`, it.Get("audio_info")))
	set("danmu_pub_type", or("0", it.Get("danmu_pub_type")))
	set("mp_video_info", jsonText(`{"list":{}}`, it.Get("mp_video_info")))
	set("appmsg_danmu_pub_type", "")

	set("is_set_sync_to_finder", "0")
	set("sync_to_finder_cover", "")
	set("sync_to_finder_cover_source", "")
	set("import_to_finder", "0")
	set("import_from_finder_export_id", "")

	set("style_type", or("3", it.Get("style_type"), mi.Get("style_type")))
	set("sticker_info", jsonText(`{"is_stickers":0,"common_stickers_num":0,"union_stickers_num":0,"sticker_id_list":[],"has_invalid_sticker":0}`, it.Get("sticker_info")))
	set("new_pic_process", "0")
	set("disable_recommend", or("0", it.Get("disable_recommend")))

	set("claim_source_type", or("", mi.Get("claim_source_type"), it.Get("claim_source", "claim_source_type"), it.Get("claim_source_type")))
	set("is_user_no_claim_source", "0")
	set("msg_index_id", or("", mi.Get("msg_index_id"), it.Get("msg_index_id")))

	set("convert_to_image_share_page", or("", it.Get("convert_to_image_share_page")))
	set("convert_from_image_share_page", or("", it.Get("convert_from_image_share_page")))
	set("incontent_ad_count", "0")
	set("multi_picture_cover", "0")
	set("title_gen_type", or("0", it.Get("title_gen_type")))
}

type reqPayload struct {
	IdxInfos        []idxInfo       `json:"idx_infos"`
	AppmsgID        json.RawMessage `json:"appmsg_id"`
	IsUseFlag       int             `json:"is_use_flag"`
	TemplateVersion string          `json:"template_version"`
}

type aiPicInfo struct {
	CoverSource json.RawMessage `json:"cover_source"`
	CoverPicID  json.RawMessage `json:"cover_pic_id"`
	AiPicID     json.RawMessage `json:"ai_pic_id"`
}

type idxInfo struct {
	SaveOld             int             `json:"save_old"`
	CpsInfo             map[string]int  `json:"cps_info"`
	RedPacketCoverList  struct{}        `json:"red_packet_cover_list"`
	LineInfo            map[string]int  `json:"line_info"`
	WindowProduct       struct{}        `json:"window_product"`
	LinkInfo            struct{}        `json:"link_info"`
	AppmsgLink          struct{}        `json:"appmsg_link"`
	WeappLink           struct{}        `json:"weapp_link"`
	YqjInfo             struct{}        `json:"yqj_info"`
	AiPicInfo           aiPicInfo       `json:"ai_pic_info"`
	SingleVideoSnapCard struct{}        `json:"single_video_snap_card"`
	ProductActivity     json.RawMessage `json:"product_activity"`
	FooterGiftActivity  json.RawMessage `json:"footer_gift_activity"`
	FooterCommonShops   json.RawMessage `json:"footer_common_shops"`
	Location            struct{}        `json:"location"`
	ClaimSource         map[string]any  `json:"claim_source"`
}

func buildReq(msg jsoniter.Any, articles []article) (string, error) {
	payload := reqPayload{
		IdxInfos:        make([]idxInfo, 0, len(articles)),
		AppmsgID:        rawOr("0", msg.Get("app_id")),
		TemplateVersion: "",
	}
	for _, a := range articles {
		it, mi := a.item, a.multi
		info := idxInfo{
			CpsInfo:  map[string]int{"cps_import": 0},
			LineInfo: map[string]int{"is_appmsg_flag": 0, "scene": 2},
			AiPicInfo: aiPicInfo{
				CoverSource: rawOr("0", mi.Get("ai_pic_info", "cover_source"), it.Get("ai_pic_info", "cover_source")),
				CoverPicID:  rawOr(`""`, mi.Get("ai_pic_info", "cover_pic_id"), it.Get("ai_pic_info", "cover_pic_id")),
				AiPicID:     rawOr("[]", mi.Get("ai_pic_info", "ai_pic_id"), it.Get("ai_pic_info", "ai_pic_id")),
			},
			ProductActivity:    rawOr("{}", mi.Get("product_activity"), it.Get("product_activity")),
			FooterGiftActivity: rawOr("{}", mi.Get("footer_gift_activity"), it.Get("footer_gift_activity")),
			FooterCommonShops:  rawOr("[]", mi.Get("footer_common_shops"), it.Get("footer_common_shops")),
			ClaimSource:        map[string]any{},
		}

		claim := mi.Get("claim_source")
		if !truthy(claim) {
			claim = it.Get("claim_source")
		}
		if truthy(claim) && truthy(claim.Get("claim_source_type")) {
			info.ClaimSource = map[string]any{
				"is_user_no_claim_source": 0,
				"media_source_type_info":  rawOr("{}", claim.Get("media_source_type_info")),
			}
		}
		payload.IdxInfos = append(payload.IdxInfos, info)
	}

	b, err := jsonCodec.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// truthy follows JavaScript truthiness for decoded JSON values.
func truthy(a jsoniter.Any) bool {
	switch a.ValueType() {
	case jsoniter.InvalidValue, jsoniter.NilValue:
		return false
	case jsoniter.BoolValue:
		return a.ToBool()
	case jsoniter.NumberValue:
		return a.ToFloat64() != 0
	case jsoniter.StringValue:
		return a.ToString() != ""
	default:
		return true
	}
}

// text renders a value the way a form encoder would stringify it.
func text(a jsoniter.Any) string {
	switch a.ValueType() {
	case jsoniter.InvalidValue:
		return ""
	case jsoniter.NilValue:
		return "null"
	case jsoniter.BoolValue:
		return strconv.FormatBool(a.ToBool())
	case jsoniter.NumberValue, jsoniter.StringValue:
		return a.ToString()
	default:
		return rawJSON(a)
	}
}

// or returns the first truthy value, or fallback.
func or(fallback string, vals ...jsoniter.Any) string {
	for _, v := range vals {
		if truthy(v) {
			return text(v)
		}
	}
	return fallback
}

// definedOr returns a present value even when falsy, or fallback when it is absent.
func definedOr(fallback string, a jsoniter.Any) string {
	if a.ValueType() == jsoniter.InvalidValue {
		return fallback
	}
	return text(a)
}

// multiOr prefers a present article value, then a truthy item value.
func multiOr(multi, item jsoniter.Any, fallback string) string {
	if multi.ValueType() != jsoniter.InvalidValue {
		return text(multi)
	}
	return or(fallback, item)
}

// jsonText returns the first string value as is. Otherwise it encodes the first
// truthy value, or returns fallback.
func jsonText(fallback string, vals ...jsoniter.Any) string {
	for _, v := range vals {
		if v.ValueType() == jsoniter.StringValue {
			return v.ToString()
		}
	}
	for _, v := range vals {
		if truthy(v) {
			return rawJSON(v)
		}
	}
	return fallback
}

func rawJSON(a jsoniter.Any) string {
	if a.ValueType() == jsoniter.NumberValue {
		return strings.TrimSpace(a.ToString())
	}
	b, err := jsonCodec.Marshal(a.GetInterface())
	if err != nil {
		return "null"
	}
	return string(b)
}

func rawOr(fallback string, vals ...jsoniter.Any) json.RawMessage {
	for _, v := range vals {
		if truthy(v) {
			return json.RawMessage(rawJSON(v))
		}
	}
	return json.RawMessage(fallback)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
