package notification

// Descriptor keys.
const (
	KeyMessageType      = "messageType"
	KeyID               = "id"
	KeyTitle            = "title"
	KeyBody             = "body"
	KeyBodyHTML         = "body_html"
	KeyTag              = "tag"
	KeySound            = "sound"
	KeyVibrate          = "vibrate"
	KeyLight            = "light"
	KeyColor            = "color"
	KeyIcon             = "icon"
	KeyChannelID        = "channel_id"
	KeyPriority         = "priority"
	KeyVisibility       = "visibility"
	KeyImage            = "image"
	KeyImageType        = "image_type"
	KeyShowNotification = "show_notification"
	KeyFrom             = "from"
	KeyCollapseKey      = "collapse_key"
	KeySentTime         = "sent_time"
	KeyTTL              = "ttl"
)

const (
	MessageTypeNotification = "notification"
	MessageTypeData         = "data"
)

// DataForeground requests a visible notification even while the app is in the
// foreground with a message callback registered. Only its presence matters.
const DataForeground = "notification_foreground"

// DataKeys maps data-map keys to the descriptor field they override.
var DataKeys = map[string]string{
	"notification_title":              KeyTitle,
	"notification_body":               KeyBody,
	"notification_tag":                KeyTag,
	"notification_android_body_html":  KeyBodyHTML,
	"notification_android_channel_id": KeyChannelID,
	"notification_android_id":         KeyID,
	"notification_android_sound":      KeySound,
	"notification_android_vibrate":    KeyVibrate,
	"notification_android_light":      KeyLight,
	"notification_android_color":      KeyColor,
	"notification_android_icon":       KeyIcon,
	"notification_android_visibility": KeyVisibility,
	"notification_android_priority":   KeyPriority,
	"notification_android_image":      KeyImage,
	"notification_android_image_type": KeyImageType,
}

// derivedOrder is the order derived keys are written into the flat payload.
var derivedOrder = []string{
	KeyID, KeyTitle, KeyBody, KeyBodyHTML, KeyTag, KeySound, KeyVibrate,
	KeyLight, KeyColor, KeyIcon, KeyChannelID, KeyPriority, KeyVisibility,
	KeyImage, KeyImageType,
}
