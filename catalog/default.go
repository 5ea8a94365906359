package catalog

import "github.com/feitianbubu/vidgate/model"

// Model families shipped with the default catalog.
const (
	FamilyKling10     = "kling-1.0"
	FamilyKling15     = "kling-1.5"
	FamilyKling16     = "kling-1.6"
	FamilyRunway      = "runway"
	FamilyDeerKlingV1 = "deer-kling-v1"
	FamilyDeerKling16 = "deer-kling-v1-6"
)

const (
	klingPrefix = "/klingai/"

	runwaySubmitPath = "/runway/submit"
	deerText2Video   = "/api/v1/videos/text2video"
)

const (
	std = model.QualityStandard
	hq  = model.QualityHigh

	square    = model.AspectSquare
	wide      = model.AspectWidescreen
	anyAspect = model.AspectAny

	t2v    = model.ModalityTextToVideo
	i2v    = model.ModalityImageToVideo
	multi  = model.ModalityMultiImageToVideo
	extend = model.ModalityVideoExtend
)

func kling(family string, modality model.Modality, q model.Quality, d int, a model.AspectClass, endpoint string) Entry {
	return Entry{
		Provider:    model.ProviderKling,
		ModelFamily: family,
		Modality:    modality,
		Quality:     q,
		Duration:    d,
		Aspect:      a,
		Path:        klingPrefix + endpoint,
		Transport:   model.TransportMultipart,
	}
}

func withTail(e Entry) Entry {
	e.TailImage = true
	return e
}

func deer(family, modelName string, q model.Quality, mode string, d int) Entry {
	return Entry{
		Provider:    model.ProviderDeer,
		ModelFamily: family,
		Modality:    t2v,
		Quality:     q,
		Duration:    d,
		Aspect:      anyAspect,
		Path:        deerText2Video,
		Transport:   model.TransportJSON,
		Model:       modelName,
		Mode:        mode,
	}
}

func runway(d int) Entry {
	return Entry{
		Provider:    model.ProviderRunway,
		ModelFamily: FamilyRunway,
		Modality:    i2v,
		Quality:     std,
		Duration:    d,
		Aspect:      anyAspect,
		Path:        runwaySubmitPath,
		Transport:   model.TransportMultipart,
	}
}

// DefaultEntries returns the rows of the default catalog.
func DefaultEntries() []Entry {
	multiImage := kling(FamilyKling16, multi, std, 5, anyAspect, "m2v_16_img2video_5s")
	multiImage.Transport = model.TransportJSON

	return []Entry{
		// kling-1.0 text: square has no standard 10s endpoint.
		kling(FamilyKling10, t2v, std, 5, square, "m2v_txt2video"),
		kling(FamilyKling10, t2v, hq, 5, square, "m2v_txt2video_hq_5s"),
		kling(FamilyKling10, t2v, hq, 10, square, "m2v_txt2video_hq_10s"),
		kling(FamilyKling10, t2v, std, 5, wide, "m2v_16_txt2video_5s"),
		kling(FamilyKling10, t2v, std, 10, wide, "m2v_16_txt2video_10s"),
		kling(FamilyKling10, t2v, hq, 5, wide, "m2v_16_txt2video_hq_5s"),
		kling(FamilyKling10, t2v, hq, 10, wide, "m2v_16_txt2video_hq_10s"),

		withTail(kling(FamilyKling10, i2v, std, 5, anyAspect, "m2v_img2video")),
		withTail(kling(FamilyKling10, i2v, std, 10, anyAspect, "m2v_img2video_10s")),
		withTail(kling(FamilyKling10, i2v, hq, 5, anyAspect, "m2v_img2video_hq")),
		withTail(kling(FamilyKling10, i2v, hq, 10, anyAspect, "m2v_img2video_hq_10s")),

		kling(FamilyKling15, i2v, std, 5, anyAspect, "m2v_15_img2video"),
		kling(FamilyKling15, i2v, std, 10, anyAspect, "m2v_15_img2video_10s"),

		kling(FamilyKling16, t2v, std, 5, anyAspect, "m2v_16_txt2video_5s"),
		kling(FamilyKling16, t2v, std, 10, anyAspect, "m2v_16_txt2video_10s"),
		kling(FamilyKling16, t2v, hq, 5, anyAspect, "m2v_16_txt2video_hq_5s"),
		kling(FamilyKling16, t2v, hq, 10, anyAspect, "m2v_16_txt2video_hq_10s"),
		kling(FamilyKling16, i2v, std, 5, anyAspect, "m2v_16_img2video_5s"),
		kling(FamilyKling16, i2v, std, 10, anyAspect, "m2v_16_img2video_10s"),
		kling(FamilyKling16, i2v, hq, 5, anyAspect, "m2v_16_img2video_hq_5s"),
		kling(FamilyKling16, i2v, hq, 10, anyAspect, "m2v_16_img2video_hq_10s"),
		multiImage,

		kling(FamilyKling10, extend, "", 0, anyAspect, "m2v_extend_video"),
		kling(FamilyKling15, extend, "", 0, anyAspect, "m2v_extend_video"),
		kling(FamilyKling16, extend, "", 0, anyAspect, "m2v_extend_video"),

		runway(5),
		runway(10),

		deer(FamilyDeerKlingV1, "kling-v1", std, "std", 5),
		deer(FamilyDeerKlingV1, "kling-v1", std, "std", 10),
		deer(FamilyDeerKlingV1, "kling-v1", hq, "pro", 5),
		deer(FamilyDeerKlingV1, "kling-v1", hq, "pro", 10),
		deer(FamilyDeerKling16, "kling-v1-6", std, "std", 5),
		deer(FamilyDeerKling16, "kling-v1-6", std, "std", 10),
		deer(FamilyDeerKling16, "kling-v1-6", hq, "pro", 5),
		deer(FamilyDeerKling16, "kling-v1-6", hq, "pro", 10),
	}
}

var defaultCatalog = MustNew(DefaultEntries()...)

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}
