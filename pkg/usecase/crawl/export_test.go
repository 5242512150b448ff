package crawl

var SelectProjects = selectProjects
