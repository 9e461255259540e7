package analyzer

// profile is a ranked trigram list for one language. '_' marks a word
// boundary. The lists are precomputed offline from per-language corpora;
// regenerating them is an index-epoch-level change, never a runtime one.
type profile struct {
	lang     string
	script   string
	trigrams []string
}

var profiles = []profile{
	{lang: "en", script: "Latn", trigrams: []string{
		"_th", "the", "he_", "ing", "ng_", "_an", "and", "nd_", "_of", "of_",
		"ion", "on_", "_to", "to_", "ed_", "er_", "_in", "in_", "tio", "ati",
		"_co", "re_", "ter", "ent", "nt_", "es_", "_a_", "al_", "at_", "st_",
		"_re", "is_", "ers", "_ma", "con", "_be", "ver", "for", "_fo", "ly_",
		"our", "ith", "wit", "_wi", "men", "_on", "nal", "ons", "nce", "eri",
		"ast", "mas", "ste", "rin", "_se", "ect", "ear", "sea", "arc", "rch",
	}},
	{lang: "es", script: "Latn", trigrams: []string{
		"_de", "de_", "_la", "la_", "os_", "_el", "el_", "en_", "_en", "es_",
		"_es", "ión", "ón_", "ció", "_qu", "que", "ue_", "ent", "nte", "te_",
		"_co", "con", "_se", "as_", "ar_", "ado", "do_", "ara", "_pa", "par",
		"cio", "aci", "ión", "_un", "un_", "una", "na_", "_po", "por", "or_",
		"sta", "_re", "res", "dad", "ad_", "los", "_lo", "las", "era", "nci",
	}},
	{lang: "fr", script: "Latn", trigrams: []string{
		"_de", "de_", "_le", "le_", "es_", "ent", "nt_", "_la", "la_", "et_",
		"_et", "ion", "on_", "_co", "les", "_le", "que", "ue_", "_qu", "re_",
		"des", "_un", "un_", "ur_", "eur", "_pa", "par", "ait", "it_", "our",
		"_po", "pou", "tio", "ati", "men", "eme", "nte", "ran", "_en", "en_",
		"ons", "ais", "ans", "_da", "dan", "tre", "_ce", "ce_", "ez_", "ire",
	}},
	{lang: "de", script: "Latn", trigrams: []string{
		"_de", "der", "er_", "en_", "ie_", "_di", "die", "und", "nd_", "_un",
		"ein", "_ei", "ich", "ch_", "sch", "che", "he_", "ung", "ng_", "gen",
		"_ge", "ten", "_be", "den", "das", "_da", "ers", "ber", "_zu", "zu_",
		"eit", "it_", "mit", "_mi", "nen", "ine", "ne_", "ver", "_ve", "auf",
		"_au", "hen", "ste", "ter", "_in", "in_", "des", "ens", "lic", "ige",
	}},
	{lang: "it", script: "Latn", trigrams: []string{
		"_di", "di_", "_de", "del", "la_", "_la", "to_", "re_", "_co", "con",
		"one", "ne_", "ion", "zio", "azi", "_in", "in_", "ent", "nte", "te_",
		"_pe", "per", "er_", "no_", "_un", "un_", "una", "che", "he_", "_ch",
		"_e_", "ell", "lla", "are", "_al", "all", "ato", "ta_", "gli", "li_",
		"ita", "men", "nto", "ni_", "ano", "_so", "son", "sta", "_si", "si_",
	}},
	{lang: "pt", script: "Latn", trigrams: []string{
		"_de", "de_", "_a_", "os_", "_co", "ão_", "ção", "açã", "_do", "do_",
		"da_", "_da", "es_", "_es", "ent", "nte", "te_", "_qu", "que", "ue_",
		"_se", "_pa", "par", "ara", "ra_", "com", "om_", "_em", "em_", "ais",
		"is_", "_um", "um_", "uma", "ma_", "_po", "por", "or_", "_na", "na_",
		"_no", "no_", "ado", "dos", "as_", "ar_", "res", "ere", "men", "ida",
	}},
	{lang: "nl", script: "Latn", trigrams: []string{
		"_de", "de_", "en_", "an_", "_va", "van", "_he", "het", "et_", "een",
		"_ee", "_en", "der", "er_", "ng_", "ing", "gen", "_ge", "ver", "_ve",
		"aar", "ar_", "oor", "_vo", "voo", "ijk", "jk_", "_in", "in_", "te_",
		"_te", "nde", "den", "_op", "op_", "at_", "cht", "sch", "_da", "dat",
		"aan", "_aa", "ten", "ere", "eer", "ie_", "_be", "el_", "ste", "len",
	}},
	{lang: "tr", script: "Latn", trigrams: []string{
		"lar", "ar_", "ler", "er_", "_bi", "bir", "ir_", "an_", "in_", "ın_",
		"_ka", "_ba", "_ya", "ini", "ını", "lık", "ık_", "dan", "den", "nde",
		"nda", "_ve", "ve_", "_bu", "bu_", "un_", "ün_", "iyo", "yor", "or_",
		"mak", "mek", "ak_", "ek_", "ile", "le_", "_il", "eri", "arı", "ası",
		"esi", "si_", "sı_", "lan", "len", "tır", "tir", "_ol", "ola", "ile",
	}},
	{lang: "id", script: "Latn", trigrams: []string{
		"an_", "_me", "men", "_di", "di_", "kan", "_ke", "ang", "ng_", "nga",
		"_pe", "per", "_se", "ber", "_be", "era", "ara", "_da", "dan", "_ya",
		"yan", "ala", "ada", "_pa", "pad", "ter", "_te", "ata", "_in", "ini",
		"_it", "itu", "tu_", "nya", "ya_", "aan", "ah_", "lah", "_la", "ika",
		"asi", "si_", "ari", "ri_", "_un", "unt", "ntu", "tuk", "uk_", "aka",
	}},
	{lang: "ru", script: "Cyrl", trigrams: []string{
		"_не", "не_", "_на", "на_", "ого", "го_", "_по", "ени", "ние", "ие_",
		"_пр", "про", "при", "ть_", "ать", "_ко", "ост", "сть", "ия_", "_в_",
		"_и_", "ово", "ова", "ани", "_за", "_со", "ест", "что", "_чт", "то_",
		"его", "ным", "_от", "от_", "ста", "_ст", "ает", "ет_", "тор", "оро",
		"ель", "ли_", "ала", "_ра", "рас", "ист", "ая_", "ый_", "ий_", "ной",
	}},
	{lang: "uk", script: "Cyrl", trigrams: []string{
		"_не", "не_", "_на", "на_", "_по", "ння", "ня_", "ого", "го_", "_пр",
		"про", "при", "ти_", "ати", "_за", "_ві", "від", "ів_", "ост", "сті",
		"_до", "до_", "ень", "нь_", "ько", "ки_", "ьки", "_та", "та_", "_і_",
		"_що", "що_", "ому", "му_", "ую_", "єть", "ься", "ся_", "енн", "ні_",
		"ний", "ії_", "ція", "ую_", "ій_", "их_", "ами", "ала", "_ро", "роз",
	}},
	{lang: "ar", script: "Arab", trigrams: []string{
		"_ال", "ال_", "الم", "ة_", "لم_", "ين_", "_في", "في_", "_من", "من_",
		"_وا", "وال", "ان_", "ات_", "ية_", "لا_", "_لا", "ها_", "_عل", "على",
		"لى_", "_أن", "أن_", "ون_", "_إل", "إلى", "هم_", "_ما", "ما_", "_با",
		"بال", "لة_", "ام_", "_مع", "مع_", "اء_", "_هذ", "هذا", "ذا_", "_كا",
		"كان", "ان_", "له_", "_قا", "قال", "عن_", "_عن", "_ول", "ولا", "اً_",
	}},
	{lang: "fa", script: "Arab", trigrams: []string{
		"_و_", "ان_", "_با", "با_", "_به", "به_", "_از", "از_", "که_", "_که",
		"ای_", "های", "هی_", "_را", "را_", "_در", "در_", "ین_", "این", "_ای",
		"است", "ست_", "_اس", "ند_", "شده", "ده_", "شد_", "ید_", "اری", "ری_",
		"می_", "_می", "برا", "رای", "_بر", "ها_", "یی_", "خود", "_خو", "ود_",
		"ردن", "دن_", "کرد", "_کر", "امه", "مه_", "انه", "نه_", "تر_", "یت_",
	}},
}
