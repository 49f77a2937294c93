package core

import (
	"golang.org/x/text/language"
)

var DefaultLanguage = language.English

// supportedLanguages is ordered like the texts in failureMessages.
var supportedLanguages = []language.Tag{language.English, language.Arabic}

var languageMatcher = language.NewMatcher(supportedLanguages)

var failureMessages = map[Code][]string{
	CodeEmployeeNotFound: {"Employee not found or inactive", "الموظف غير موجود أو غير نشط"},
	CodeBranchNotFound:   {"No branch is assigned to this employee", "لا يوجد فرع مخصص لهذا الموظف"},
	CodeNoCheckIn:        {"There is no open check-in to close", "لا يوجد تسجيل حضور مفتوح"},
	CodeAlreadyCheckedIn: {"You are already checked in", "لقد قمت بتسجيل الحضور مسبقاً"},
	CodeOutsideGeofence:  {"You are outside the branch area", "أنت خارج نطاق الفرع"},
	CodeLocationMissing:  {"Location is not available", "الموقع غير متاح"},
	CodeLowAccuracy:      {"Location accuracy is too low", "دقة الموقع منخفضة جداً"},
	CodeLocationOutdated: {"Location is outdated, please refresh it", "الموقع قديم، يرجى تحديثه"},
	CodeInvalidRequest:   {"The request is invalid", "الطلب غير صالح"},
	CodeServerError:      {"Something went wrong, please try again", "حدث خطأ ما، يرجى المحاولة مرة أخرى"},
}

// MatchLanguage picks the best supported language for an Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	_, index := language.MatchStrings(languageMatcher, acceptLanguage)
	return supportedLanguages[index]
}

func Message(code Code, tag language.Tag) string {
	texts, ok := failureMessages[code]
	if !ok {
		return string(code)
	}
	_, index, _ := languageMatcher.Match(tag)
	if index < len(texts) {
		return texts[index]
	}
	return texts[0]
}

func (f *Failure) Localized(tag language.Tag) string {
	return Message(f.Code, tag)
}
