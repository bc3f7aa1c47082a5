package i18n

import "strings"

var translations = map[string]string{
	"invalid request":                             "Geçersiz istek",
	"missing authorization token":                 "Yetkilendirme anahtarı gönderilmedi",
	"invalid token":                               "Geçersiz oturum anahtarı",
	"unauthorized":                                "Yetkisiz erişim",
	"admin access required":                       "Yönetici yetkisi gereklidir",
	"user not found":                              "Kullanıcı bulunamadı",
	"conversation not found":                      "Sohbet bulunamadı",
	"message not found":                           "Mesaj bulunamadı",
	"not a participant of this conversation":      "Bu sohbetin katılımcısı değilsiniz",
	"only the sender can delete a message":        "Mesajı yalnızca gönderen silebilir",
	"cannot start a conversation with yourself":   "Kendinizle sohbet başlatamazsınız",
	"message content cannot be empty":             "Mesaj içeriği boş olamaz",
	"message content exceeds the allowed length":  "Mesaj içeriği izin verilen uzunluğu aşıyor",
	"media messages require a media url":          "Medya mesajları için medya adresi gereklidir",
	"unsupported message type":                    "Desteklenmeyen mesaj türü",
	"disappear timer must be off, 1, 24 or 168 hours": "Kaybolma süresi kapalı, 1, 24 veya 168 saat olmalıdır",
	"storage unavailable":                         "Depolama hizmetine şu anda ulaşılamıyor",
	"username is already taken":                   "Bu kullanıcı adı zaten alınmış",
	"invalid username or password":                "Kullanıcı adı veya şifre hatalı",
	"username required":                           "Kullanıcı adı gereklidir",
	"username must be between 3 and 32 characters": "Kullanıcı adı 3 ile 32 karakter arasında olmalıdır",
	"username can only contain letters, numbers, and underscores": "Kullanıcı adı yalnızca harf, rakam ve alt çizgi içerebilir",
	"password must be at least 6 characters":      "Şifre en az 6 karakter olmalıdır",
	"invalid conversation id":                     "Geçersiz sohbet kimliği",
	"invalid message id":                          "Geçersiz mesaj kimliği",
	"invalid user id":                             "Geçersiz kullanıcı kimliği",
	"user_id query parameter required":            "user_id parametresi gereklidir",
	"file is required":                            "Dosya gereklidir",
	"file too large":                              "Dosya boyutu çok büyük",
	"file must be an image":                       "Dosya bir resim olmalıdır",
	"failed to save file":                         "Dosya kaydedilemedi",
	"websocket upgrade failed":                    "WebSocket bağlantısı kurulamadı",
	"rate limiter error":                          "İstek sınırlayıcı hatası",
	"rate limit exceeded":                         "Çok fazla istek gönderildi",
	"internal server error":                       "Sunucu hatası",
	"not found":                                   "Bulunamadı",
	"contains a banned term":                      "Yasaklı bir ifade içeriyor",
	"contains contact information":                "İletişim bilgisi içeriyor",
	"contains a link":                             "Bağlantı içeriyor",
	"contains a suspicious term":                  "Şüpheli bir ifade içeriyor",
	"off":                                         "Kapalı",
	"1 hour":                                      "1 Saat",
	"24 hours":                                    "24 Saat",
	"7 days":                                      "7 Gün",
}

var prefixTranslations = map[string]string{
	"failed to hash password:":   "Şifre işlenirken hata oluştu",
	"failed to generate token:":  "Oturum anahtarı oluşturulamadı",
	"failed to sign token:":      "Oturum anahtarı imzalanamadı",
	"failed to parse token:":     "Geçersiz oturum anahtarı",
	"unexpected signing method:": "Geçersiz imzalama yöntemi",
	"storage unavailable:":       "Depolama hizmetine şu anda ulaşılamıyor",
}

func Translate(message string) string {
	if translated, ok := translations[message]; ok {
		return translated
	}
	for prefix, translated := range prefixTranslations {
		if strings.HasPrefix(message, prefix) {
			return translated
		}
	}
	return message
}
